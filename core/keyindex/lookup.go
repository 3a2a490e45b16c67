package keyindex

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"subsidy-recon/core/modelkey"
	"subsidy-recon/core/opening"
)

// candidateStrategy yields model spellings to try, in order
type candidateStrategy func(model string) []string

// strategies are evaluated lazily; later ones run only on a miss
var strategies = []candidateStrategy{
	func(model string) []string { return []string{model} },
	modelkey.Variants,
}

// Find returns the value for (model, t) if any spelling of model has one.
// t must be concrete; CombinedNewOrChange resolves through NewLine and
// AllTypes never matches.
func (ix *Index) Find(model string, t opening.Type) (decimal.Decimal, bool) {
	switch t {
	case opening.CombinedNewOrChange:
		t = opening.NewLine
	case opening.AllTypes:
		return decimal.Zero, false
	}
	if !t.IsConcrete() {
		return decimal.Zero, false
	}
	return ix.find(model, t.String())
}

// Lookup returns the value for (model, t) or def when nothing matches.
// Misses are reported through the miss throttle.
func (ix *Index) Lookup(model string, t opening.Type, def decimal.Decimal) decimal.Decimal {
	if v, ok := ix.Find(model, t); ok {
		return v
	}
	ix.reportMiss(model, t.String())
	return def
}

// LookupLabel resolves a raw label. The literal combined-label slot is tried
// first, then the label's classified type.
func (ix *Index) LookupLabel(model, label string, def decimal.Decimal) decimal.Decimal {
	set := opening.Classify(label)
	if set.Combined() && !set.IsAll() {
		if v, ok := ix.find(model, labelSlot(label)); ok {
			return v
		}
	}
	if set.IsAll() {
		ix.reportMiss(model, labelSlot(label))
		return def
	}
	return ix.Lookup(model, set.Type(), def)
}

func (ix *Index) find(model, slot string) (decimal.Decimal, bool) {
	tried := make(map[string]struct{}, 8)
	for _, strategy := range strategies {
		for _, candidate := range strategy(model) {
			if _, ok := tried[candidate]; ok {
				continue
			}
			tried[candidate] = struct{}{}
			if v, ok := ix.entries[candidate+keySep+slot]; ok {
				return v, true
			}
		}
	}
	return decimal.Zero, false
}

func (ix *Index) reportMiss(model, slot string) {
	key := ix.name + keySep + modelkey.Normalize(model) + keySep + slot
	ix.misses.Debug(ix.logger, key, "no matching entry",
		zap.String("index", ix.name),
		zap.String("model", model),
		zap.String("slot", slot),
	)
}
