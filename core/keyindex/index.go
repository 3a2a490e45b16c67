// Package keyindex builds composite (model, opening type) lookup maps from
// raw support and rebate rows whose model codes and type labels are
// inconsistently formatted.
package keyindex

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"subsidy-recon/core/determinism"
	"subsidy-recon/core/modelkey"
	"subsidy-recon/core/opening"
	"subsidy-recon/internal/logging"
)

// Row is one {model, label, value} record from a support or rebate table
type Row struct {
	Model string
	Label string
	Value decimal.Decimal
}

// Entry is one materialized key of an index
type Entry struct {
	Model string
	Slot  string
	Value decimal.Decimal
}

// DefaultMissCooldown is how long a missing key stays quiet after being logged
const DefaultMissCooldown = 10 * time.Minute

const (
	keySep      = "\x1f"
	labelPrefix = "label:"
)

// Index maps (model variant, slot) to a value. A slot is either a concrete
// opening type name or a literal combined label.
type Index struct {
	name    string
	entries map[string]decimal.Decimal
	dropped int

	logger *zap.Logger
	misses *logging.Throttle
}

// Option configures an Index
type Option func(*Index)

// WithName labels the index in logs
func WithName(name string) Option {
	return func(ix *Index) { ix.name = name }
}

// WithLogger sets the logger used for miss reporting
func WithLogger(l *zap.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

// WithMissThrottle shares a miss throttle between indexes so a model that is
// absent everywhere is reported once per window, not once per table.
func WithMissThrottle(th *logging.Throttle) Option {
	return func(ix *Index) { ix.misses = th }
}

// New returns an empty index
func New(opts ...Option) *Index {
	ix := &Index{entries: make(map[string]decimal.Decimal)}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.logger == nil {
		ix.logger = logging.Component("keyindex")
	}
	if ix.misses == nil {
		ix.misses = logging.NewThrottle(DefaultMissCooldown)
	}
	return ix
}

// Build indexes rows.
//
// Specific rows are applied in input order, then blanket (AllTypes) rows fill
// whatever keys are still absent. A model that has both an explicit PortIn row
// and an explicit combined NewLine+DeviceChange row ignores its blanket rows
// entirely.
func Build(rows []Row, opts ...Option) *Index {
	ix := New(opts...)

	explicit := explicitCoverage(rows)

	var blanket []Row
	for _, r := range rows {
		if strings.TrimSpace(r.Model) == "" {
			continue
		}
		set := opening.Classify(r.Label)
		if set.IsAll() {
			blanket = append(blanket, r)
			continue
		}
		ix.writeSpecific(r, set)
	}

	for _, r := range blanket {
		if c := explicit[r.Model]; c.portIn && c.combined {
			ix.dropped++
			continue
		}
		for _, t := range opening.Concrete {
			ix.write(r.Model, t.String(), r.Value, true)
		}
	}

	return ix
}

type coverage struct {
	portIn   bool
	combined bool
}

// explicitCoverage groups rows by exact model string and records which
// explicit (non-blanket) types each model carries.
func explicitCoverage(rows []Row) map[string]coverage {
	out := make(map[string]coverage)
	for _, r := range rows {
		set := opening.Classify(r.Label)
		if set.IsAll() {
			continue
		}
		c := out[r.Model]
		if set.Has(opening.PortIn) {
			c.portIn = true
		}
		if set.Combined() {
			c.combined = true
		}
		out[r.Model] = c
	}
	return out
}

// writeSpecific writes a non-blanket row. PortIn writes only the PortIn type
// slot; there is no MNP synonym slot. A combined row also writes its literal
// label so lookups by the raw label succeed.
func (ix *Index) writeSpecific(r Row, set opening.Set) {
	for _, t := range set.Types() {
		ix.write(r.Model, t.String(), r.Value, false)
	}
	if set.Combined() && !set.Has(opening.PortIn) {
		ix.write(r.Model, labelSlot(r.Label), r.Value, false)
	}
}

// write applies the set-if-better rule to every variant of model. A zero
// never replaces a known non-zero; a blanket value never replaces anything.
func (ix *Index) write(model, slot string, value decimal.Decimal, blanket bool) {
	for _, v := range modelkey.Variants(model) {
		key := v + keySep + slot
		existing, ok := ix.entries[key]
		if ok && blanket {
			continue
		}
		if ok && value.IsZero() && !existing.IsZero() {
			continue
		}
		ix.entries[key] = value
	}
}

func labelSlot(label string) string {
	return labelPrefix + opening.Fold(label)
}

// Name returns the index label
func (ix *Index) Name() string {
	return ix.name
}

// Len returns the number of materialized keys
func (ix *Index) Len() int {
	return len(ix.entries)
}

// DroppedBlanketRows returns how many blanket rows were discarded because the
// model carried explicit PortIn and combined rows.
func (ix *Index) DroppedBlanketRows() int {
	return ix.dropped
}

// Entries returns every key in sorted order
func (ix *Index) Entries() []Entry {
	out := make([]Entry, 0, len(ix.entries))
	for _, k := range determinism.SortedKeys(ix.entries) {
		model, slot, _ := strings.Cut(k, keySep)
		out = append(out, Entry{Model: model, Slot: slot, Value: ix.entries[k]})
	}
	return out
}

// Snapshot returns the index as plain strings, for comparison and hashing
func (ix *Index) Snapshot() map[string]string {
	out := make(map[string]string, len(ix.entries))
	for k, v := range ix.entries {
		out[k] = v.String()
	}
	return out
}

// Fingerprint is a content hash of the index
func (ix *Index) Fingerprint() string {
	return determinism.Fingerprint(ix.Snapshot())
}
