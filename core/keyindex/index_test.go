package keyindex

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"subsidy-recon/core/opening"
	"subsidy-recon/internal/logging"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func row(model, label string, v int64) Row {
	return Row{Model: model, Label: label, Value: d(v)}
}

func mustEqual(t *testing.T, what string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("%s = %s, want %s", what, got, want)
	}
}

// A combined row is reachable by NewLine, DeviceChange and the literal label.
func TestCombinedLabelPopulatesThreeKeys(t *testing.T) {
	ix := Build([]Row{row("SM-S928N", "010/기변", 300000)})

	mustEqual(t, "NewLine", ix.Lookup("SM-S928N", opening.NewLine, d(0)), d(300000))
	mustEqual(t, "DeviceChange", ix.Lookup("SM-S928N", opening.DeviceChange, d(0)), d(300000))
	mustEqual(t, "literal label", ix.LookupLabel("SM-S928N", "010/기변", d(0)), d(300000))
	mustEqual(t, "literal label spacing", ix.LookupLabel("SM-S928N", "010 / 기변", d(0)), d(300000))

	if _, ok := ix.Find("SM-S928N", opening.PortIn); ok {
		t.Error("combined row must not populate PortIn")
	}
}

// An explicit PortIn row beats a blanket row.
func TestExplicitPortInBeatsBlanket(t *testing.T) {
	for _, rows := range [][]Row{
		{row("SM-F741N", "MNP", 500000), row("SM-F741N", "전유형", 200000)},
		{row("SM-F741N", "전유형", 200000), row("SM-F741N", "MNP", 500000)},
	} {
		ix := Build(rows)
		mustEqual(t, "PortIn", ix.Lookup("SM-F741N", opening.PortIn, d(0)), d(500000))
		mustEqual(t, "NewLine gap filled by blanket", ix.Lookup("SM-F741N", opening.NewLine, d(0)), d(200000))
	}
}

func TestBlanketDroppedWhenPortInAndCombinedExist(t *testing.T) {
	ix := Build([]Row{
		row("SM-F741N", "전체", 999),
		row("SM-F741N", "번호이동", 500000),
		row("SM-F741N", "신규/기기변경", 300000),
	})

	if ix.DroppedBlanketRows() != 1 {
		t.Fatalf("DroppedBlanketRows = %d, want 1", ix.DroppedBlanketRows())
	}
	for _, e := range ix.Entries() {
		if e.Value.Equal(d(999)) {
			t.Errorf("blanket value leaked into %s/%s", e.Model, e.Slot)
		}
	}
}

func TestPortInDoesNotCrossAssign(t *testing.T) {
	ix := Build([]Row{
		row("AIP16-128", "MNP", 700000),
		row("AIP16-128", "010", 100000),
		row("AIP16-128", "기변", 200000),
	})

	mustEqual(t, "PortIn", ix.Lookup("AIP16-128", opening.PortIn, d(0)), d(700000))
	mustEqual(t, "NewLine", ix.Lookup("AIP16-128", opening.NewLine, d(0)), d(100000))
	mustEqual(t, "DeviceChange", ix.Lookup("AIP16-128", opening.DeviceChange, d(0)), d(200000))

	for _, e := range ix.Entries() {
		if e.Slot != opening.PortIn.String() && e.Value.Equal(d(700000)) {
			t.Errorf("PortIn value written to slot %q", e.Slot)
		}
	}
}

func TestZeroNeverRegressesNonZero(t *testing.T) {
	ix := Build([]Row{
		row("SM-A356N", "010", 150000),
		row("SM-A356N", "010", 0),
	})
	mustEqual(t, "NewLine", ix.Lookup("SM-A356N", opening.NewLine, d(-1)), d(150000))

	ix = Build([]Row{
		row("SM-A356N", "010", 150000),
		row("SM-A356N", "010", 170000),
	})
	mustEqual(t, "later non-zero", ix.Lookup("SM-A356N", opening.NewLine, d(-1)), d(170000))
}

func TestBlanketOnlyFillsGaps(t *testing.T) {
	ix := Build([]Row{
		row("SM-A356N", "010", 0),
		row("SM-A356N", "모두", 80000),
	})
	mustEqual(t, "explicit zero kept", ix.Lookup("SM-A356N", opening.NewLine, d(-1)), d(0))
	mustEqual(t, "gap filled", ix.Lookup("SM-A356N", opening.PortIn, d(-1)), d(80000))
}

func TestLookupFallsBackThroughVariants(t *testing.T) {
	ix := Build([]Row{row("SM-S928N", "MNP", 450000)})

	for _, spelling := range []string{"SM-S928N", "sm-s928n", "SMS928N", "sms928n", "sm_s928n", " SM S928N "} {
		mustEqual(t, spelling, ix.Lookup(spelling, opening.PortIn, d(0)), d(450000))
	}
	mustEqual(t, "unknown model", ix.Lookup("SM-X000N", opening.PortIn, d(7)), d(7))
	mustEqual(t, "AllTypes never matches", ix.Lookup("SM-S928N", opening.AllTypes, d(7)), d(7))
}

// Blanket rows are order-insensitive: appending them only adds absent keys.
func TestBlanketRowsOnlyExtend(t *testing.T) {
	specific := []Row{
		row("SM-S928N", "MNP", 450000),
		row("SM-S928N", "010/기변", 300000),
		row("UA-FLIP6", "기변", 120000),
	}
	blanket := row("UA-FLIP6", "전유형", 50000)

	base := Build(specific).Snapshot()
	after := Build(append(append([]Row{}, specific...), blanket)).Snapshot()
	before := Build(append([]Row{blanket}, specific...)).Snapshot()

	if !reflect.DeepEqual(after, before) {
		t.Error("blanket row position must not change the index")
	}
	for k, v := range base {
		if after[k] != v {
			t.Errorf("key %q changed from %s to %s", k, v, after[k])
		}
	}
	if len(after) <= len(base) {
		t.Error("expected blanket row to add keys")
	}
}

func TestBuildDeterministic(t *testing.T) {
	rows := []Row{
		row("SM-S928N", "MNP", 450000),
		row("sm_s928n", "010", 1),
		row("SM-F741N", "전유형", 200000),
		row("AIP16", "010/기변", 300000),
	}
	a, b := Build(rows), Build(rows)
	if !reflect.DeepEqual(a.Snapshot(), b.Snapshot()) {
		t.Fatal("identical input must yield identical maps")
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical input must yield identical fingerprints")
	}
}

func TestBlankModelRowsIgnored(t *testing.T) {
	ix := Build([]Row{row("  ", "010", 5), row("", "전체", 5)})
	if ix.Len() != 0 {
		t.Errorf("expected empty index, got %d keys", ix.Len())
	}
}

func TestMissesAreThrottled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ix := Build(nil,
		WithName("SK/support/high"),
		WithLogger(zap.New(core)),
		WithMissThrottle(logging.NewThrottle(time.Hour)),
	)

	for i := 0; i < 5; i++ {
		ix.Lookup("SM-X000N", opening.PortIn, d(0))
		ix.Lookup("sm_x000n", opening.PortIn, d(0))
	}
	ix.Lookup("SM-X000N", opening.NewLine, d(0))

	if logs.Len() != 2 {
		t.Errorf("expected 2 miss lines (one per unique key), got %d", logs.Len())
	}
}
