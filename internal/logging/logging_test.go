package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestInitializeFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recon.log")
	if err := Initialize(Config{Level: "warn", Format: "json", Output: path}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = Initialize(DefaultConfig()) })

	log := Component("gateway")
	log.Info("below level")
	log.Warn("quota exceeded", zap.String("key", "SK_models"))
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "below level") {
		t.Error("info line must be filtered at warn level")
	}
	for _, want := range []string{`"logger":"gateway"`, `"msg":"quota exceeded"`, `"key":"SK_models"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
	if closer != nil {
		t.Error("Sync must close the file output")
	}
}

func TestInitializeBadPath(t *testing.T) {
	err := Initialize(Config{Level: "info", Output: filepath.Join(t.TempDir(), "missing", "x.log")})
	if err == nil {
		t.Fatal("expected error for an unwritable path")
	}
}

func TestOrDefault(t *testing.T) {
	l := zap.NewExample()
	if OrDefault(l, "x") != l {
		t.Error("an injected logger must be returned as is")
	}
	if OrDefault(nil, "x") == nil {
		t.Error("nil must fall back to the global logger")
	}
}
