// Package policy holds the per-carrier policy snapshot (margin, addon
// services, insurance catalog, special policies) used by the calculator.
package policy

import (
	"strings"

	"github.com/shopspring/decimal"

	"subsidy-recon/core/opening"
)

// DefaultFlipFoldKeywords identify flip/fold devices and flip/fold coverage
var DefaultFlipFoldKeywords = []string{"flip", "fold", "플립", "폴드"}

// Addon is a value-added service the customer subscribes to
type Addon struct {
	Name      string          `json:"name"`
	Fee       decimal.Decimal `json:"fee"`
	Incentive decimal.Decimal `json:"incentive"`
	Deduction decimal.Decimal `json:"deduction"`
}

// Insurance is a device insurance product valid for a factory-price band
type Insurance struct {
	Name      string          `json:"name"`
	MinPrice  decimal.Decimal `json:"min_price"`
	MaxPrice  decimal.Decimal `json:"max_price"`
	Fee       decimal.Decimal `json:"fee"`
	Incentive decimal.Decimal `json:"incentive"`
	Deduction decimal.Decimal `json:"deduction"`
	FlipFold  bool            `json:"flip_fold"`
}

// Covers reports whether price falls in [MinPrice, MaxPrice]. A zero
// MaxPrice means no upper bound.
func (i Insurance) Covers(price decimal.Decimal) bool {
	if price.LessThan(i.MinPrice) {
		return false
	}
	if i.MaxPrice.IsZero() {
		return true
	}
	return price.LessThanOrEqual(i.MaxPrice)
}

// Special is a time-boxed carrier or dealer policy adjustment
type Special struct {
	Name      string          `json:"name"`
	Addition  decimal.Decimal `json:"addition"`
	Deduction decimal.Decimal `json:"deduction"`
	Active    bool            `json:"active"`
}

// Settings is the flat policy snapshot of one carrier for one run
type Settings struct {
	Carrier                 string          `json:"carrier"`
	BaseMargin              decimal.Decimal `json:"base_margin"`
	Addons                  []Addon         `json:"addons,omitempty"`
	Insurance               []Insurance     `json:"insurance,omitempty"`
	Specials                []Special       `json:"specials,omitempty"`
	PreferFlipFoldInsurance bool            `json:"prefer_flip_fold_insurance"`
	FlipFoldKeywords        []string        `json:"flip_fold_keywords,omitempty"`
}

// Empty returns settings with no margin and no adjustments
func Empty(carrier string) *Settings {
	return &Settings{Carrier: carrier}
}

// AddonIncentiveSum sums addon incentives
func (s *Settings) AddonIncentiveSum() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range s.Addons {
		sum = sum.Add(a.Incentive)
	}
	return sum
}

// AddonDeductionSum sums addon deductions
func (s *Settings) AddonDeductionSum() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range s.Addons {
		sum = sum.Add(a.Deduction)
	}
	return sum
}

// SpecialAdditionSum sums additions of active special policies
func (s *Settings) SpecialAdditionSum() decimal.Decimal {
	sum := decimal.Zero
	for _, sp := range s.Specials {
		if sp.Active {
			sum = sum.Add(sp.Addition)
		}
	}
	return sum
}

// SpecialDeductionSum sums deductions of active special policies
func (s *Settings) SpecialDeductionSum() decimal.Decimal {
	sum := decimal.Zero
	for _, sp := range s.Specials {
		if sp.Active {
			sum = sum.Add(sp.Deduction)
		}
	}
	return sum
}

// Keywords returns the configured flip/fold keywords or the defaults
func (s *Settings) Keywords() []string {
	if len(s.FlipFoldKeywords) > 0 {
		return s.FlipFoldKeywords
	}
	return DefaultFlipFoldKeywords
}

// IsFlipFold reports whether name mentions a flip/fold keyword
func (s *Settings) IsFlipFold(name string) bool {
	text := opening.Fold(name)
	if text == "" {
		return false
	}
	for _, kw := range s.Keywords() {
		if kw = opening.Fold(kw); kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
