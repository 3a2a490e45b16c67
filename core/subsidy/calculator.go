// Package subsidy computes store support and purchase price for one device,
// plan group and opening type from matched support/rebate values and the
// carrier's policy snapshot.
package subsidy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"subsidy-recon/core/opening"
	"subsidy-recon/core/policy"
	"subsidy-recon/core/tables"
)

// Lookup is the read side of a composite-key index
type Lookup interface {
	Lookup(model string, t opening.Type, def decimal.Decimal) decimal.Decimal
}

// PlanGroups names a carrier's default (high tier) and budget (low tier) groups
type PlanGroups struct {
	Default string `json:"default"`
	Budget  string `json:"budget,omitempty"`
}

// Result is the priced outcome for one (carrier, model, plan group, type)
type Result struct {
	Carrier        string          `json:"carrier"`
	Model          string          `json:"model"`
	NormalizedCode string          `json:"normalized_code"`
	DisplayName    string          `json:"display_name"`
	PlanGroup      string          `json:"plan_group"`
	OpeningType    opening.Type    `json:"opening_type"`
	FactoryPrice   decimal.Decimal `json:"factory_price"`
	PublicSupport  decimal.Decimal `json:"public_support"`
	PolicyRebate   decimal.Decimal `json:"policy_rebate"`
	StoreSupport   decimal.Decimal `json:"store_support"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	PolicyMargin   decimal.Decimal `json:"policy_margin"`
	Insurance      string          `json:"insurance,omitempty"`
	Breakdown      Breakdown       `json:"breakdown"`
}

// Breakdown records the policy terms that went into StoreSupport and PolicyMargin
type Breakdown struct {
	BaseMargin         decimal.Decimal `json:"base_margin"`
	AddonIncentive     decimal.Decimal `json:"addon_incentive"`
	AddonDeduction     decimal.Decimal `json:"addon_deduction"`
	InsuranceIncentive decimal.Decimal `json:"insurance_incentive"`
	InsuranceDeduction decimal.Decimal `json:"insurance_deduction"`
	SpecialAddition    decimal.Decimal `json:"special_addition"`
	SpecialDeduction   decimal.Decimal `json:"special_deduction"`
}

// Calculator prices devices for one carrier
type Calculator struct {
	carrier  string
	settings *policy.Settings
	support  map[string]Lookup
	rebate   map[string]Lookup
	groups   PlanGroups
}

// NewCalculator creates a calculator. support and rebate are keyed by plan
// group; a group without a table prices as zero.
func NewCalculator(carrier string, settings *policy.Settings, support, rebate map[string]Lookup, groups PlanGroups) *Calculator {
	if settings == nil {
		settings = policy.Empty(carrier)
	}
	return &Calculator{
		carrier:  carrier,
		settings: settings,
		support:  support,
		rebate:   rebate,
		groups:   groups,
	}
}

// Settings returns the policy snapshot in use
func (c *Calculator) Settings() *policy.Settings {
	return c.settings
}

// PlanGroup returns planGroup, or the default selection for device when empty
func (c *Calculator) PlanGroup(device tables.Device, planGroup string) string {
	if planGroup != "" {
		return planGroup
	}
	return SelectPlanGroup(device, c.groups)
}

// Compute prices one concrete opening type
func (c *Calculator) Compute(device tables.Device, planGroup string, t opening.Type) (Result, error) {
	if !t.IsConcrete() {
		return Result{}, fmt.Errorf("opening type %s is not concrete", t)
	}
	group := c.PlanGroup(device, planGroup)

	publicSupport := lookup(c.support[group], device.RawCode, t)
	rebate := lookup(c.rebate[group], device.RawCode, t)

	s := c.settings
	b := Breakdown{
		BaseMargin:         s.BaseMargin,
		AddonIncentive:     s.AddonIncentiveSum(),
		AddonDeduction:     s.AddonDeductionSum(),
		InsuranceIncentive: decimal.Zero,
		InsuranceDeduction: decimal.Zero,
		SpecialAddition:    s.SpecialAdditionSum(),
		SpecialDeduction:   s.SpecialDeductionSum(),
	}

	var insuranceName string
	if ins := SelectInsurance(s, device); ins != nil {
		insuranceName = ins.Name
		b.InsuranceIncentive = ins.Incentive
		b.InsuranceDeduction = ins.Deduction
	}

	storeSupport := StoreSupport(rebate, b)
	purchase := PurchasePrice(device.FactoryPrice, publicSupport, storeSupport)

	return Result{
		Carrier:        c.carrier,
		Model:          device.RawCode,
		NormalizedCode: device.NormalizedCode,
		DisplayName:    device.Name(),
		PlanGroup:      group,
		OpeningType:    t,
		FactoryPrice:   device.FactoryPrice,
		PublicSupport:  publicSupport,
		PolicyRebate:   rebate,
		StoreSupport:   storeSupport,
		PurchasePrice:  purchase,
		PolicyMargin:   PolicyMargin(b),
		Insurance:      insuranceName,
		Breakdown:      b,
	}, nil
}

// ComputeAll prices every concrete type t stands for, in canonical order
func (c *Calculator) ComputeAll(device tables.Device, planGroup string, t opening.Type) []Result {
	var out []Result
	for _, ct := range t.Expand() {
		r, err := c.Compute(device, planGroup, ct)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

func lookup(ix Lookup, model string, t opening.Type) decimal.Decimal {
	if ix == nil {
		return decimal.Zero
	}
	return ix.Lookup(model, t, decimal.Zero)
}

// StoreSupport is max(0, rebate - baseMargin + addon incentives +
// insurance incentive + special additions).
func StoreSupport(rebate decimal.Decimal, b Breakdown) decimal.Decimal {
	v := rebate.
		Sub(b.BaseMargin).
		Add(b.AddonIncentive).
		Add(b.InsuranceIncentive).
		Add(b.SpecialAddition)
	return nonNegative(v)
}

// PurchasePrice is max(0, factoryPrice - publicSupport - storeSupport)
func PurchasePrice(factoryPrice, publicSupport, storeSupport decimal.Decimal) decimal.Decimal {
	return nonNegative(factoryPrice.Sub(publicSupport).Sub(storeSupport))
}

// PolicyMargin is what the dealer retains: the base margin plus every
// deduction term.
func PolicyMargin(b Breakdown) decimal.Decimal {
	return b.BaseMargin.
		Add(b.AddonDeduction).
		Add(b.InsuranceDeduction).
		Add(b.SpecialDeduction)
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
