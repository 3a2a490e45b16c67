// Package logging provides structured logging for the reconciliation core.
//
// The CLI initializes one global logger from configuration; core components
// receive named children of it and never log through package functions.
package logging

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the global logger. It is a no-op logger until Initialize runs.
var Logger = zap.NewNop()

var (
	mu     sync.Mutex
	closer io.Closer
)

// Config contains logging configuration
type Config struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string `json:"level"`

	// Format is json or console
	Format string `json:"format"`

	// Output is stdout, stderr or a file path opened for append
	Output string `json:"output"`

	// Development adds stack traces to error lines
	Development bool `json:"development"`
}

// DefaultConfig logs info and above to stderr in console form
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// Initialize replaces the global logger. A file opened by an earlier call is
// flushed and closed. An unparseable level falls back to info.
func Initialize(cfg Config) error {
	ws, c, err := openOutput(cfg.Output)
	if err != nil {
		return err
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}
	next := zap.New(zapcore.NewCore(newEncoder(cfg.Format), ws, level), opts...)

	mu.Lock()
	defer mu.Unlock()
	syncLocked()
	Logger, closer = next, c
	return nil
}

func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func openOutput(output string) (zapcore.WriteSyncer, io.Closer, error) {
	switch output {
	case "", "stderr":
		return zapcore.Lock(os.Stderr), nil, nil
	case "stdout":
		return zapcore.Lock(os.Stdout), nil, nil
	}
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	return zapcore.AddSync(f), f, nil
}

// Sync flushes the global logger and closes its file output, if any. The
// CLI calls it once before exiting.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	syncLocked()
}

func syncLocked() {
	// Sync on a terminal returns EINVAL on some platforms.
	_ = Logger.Sync()
	if closer != nil {
		_ = closer.Close()
		closer = nil
	}
}

// Component returns the global logger named for a component
func Component(name string) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return Logger.Named(name)
}

// OrDefault returns l, or the named global logger when l is nil
func OrDefault(l *zap.Logger, name string) *zap.Logger {
	if l != nil {
		return l
	}
	return Component(name)
}

func init() {
	_ = Initialize(DefaultConfig())
}
