package subsidy

import (
	"testing"

	"github.com/shopspring/decimal"

	"subsidy-recon/core/keyindex"
	"subsidy-recon/core/opening"
	"subsidy-recon/core/policy"
	"subsidy-recon/core/tables"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func device(code, name string, price int64, tags ...string) tables.Device {
	return tables.Device{
		RawCode:      code,
		DisplayName:  name,
		FactoryPrice: d(price),
		Tags:         tags,
	}
}

func TestComputeManWonRebate(t *testing.T) {
	rebateRows, _, err := tables.SubsidyRows(tables.KindRebate, [][]any{
		{"모델명", "금액"},
		{"SM-S928N", "69"},
	}, tables.RebateScale)
	if err != nil {
		t.Fatal(err)
	}
	support := keyindex.Build([]keyindex.Row{
		{Model: "SM-S928N", Label: "전유형", Value: d(450000)},
	})
	rebate := keyindex.Build(rebateRows)

	settings := policy.Empty("SK")
	settings.BaseMargin = d(50000)

	calc := NewCalculator("SK", settings,
		map[string]Lookup{"5G_high": support},
		map[string]Lookup{"5G_high": rebate},
		PlanGroups{Default: "5G_high"})

	got, err := calc.Compute(device("SM-S928N", "갤럭시 S24 Ultra", 1700000), "", opening.PortIn)
	if err != nil {
		t.Fatal(err)
	}

	checks := []struct {
		name string
		got  decimal.Decimal
		want int64
	}{
		{"policy rebate", got.PolicyRebate, 690000},
		{"store support", got.StoreSupport, 640000},
		{"public support", got.PublicSupport, 450000},
		{"purchase price", got.PurchasePrice, 610000},
		{"policy margin", got.PolicyMargin, 50000},
	}
	for _, c := range checks {
		if !c.got.Equal(d(c.want)) {
			t.Errorf("%s = %s, want %d", c.name, c.got, c.want)
		}
	}
	if got.PlanGroup != "5G_high" {
		t.Errorf("PlanGroup = %q", got.PlanGroup)
	}
}

func TestNonNegative(t *testing.T) {
	tests := []struct {
		name      string
		rebate    int64
		margin    int64
		factory   int64
		public    int64
		wantStore int64
		wantPrice int64
	}{
		{"margin above rebate", 10000, 50000, 1000000, 200000, 0, 800000},
		{"support above price", 900000, 0, 500000, 300000, 900000, 0},
		{"all zero", 0, 0, 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := StoreSupport(d(tt.rebate), Breakdown{BaseMargin: d(tt.margin)})
			if !store.Equal(d(tt.wantStore)) {
				t.Errorf("StoreSupport = %s, want %d", store, tt.wantStore)
			}
			price := PurchasePrice(d(tt.factory), d(tt.public), store)
			if !price.Equal(d(tt.wantPrice)) {
				t.Errorf("PurchasePrice = %s, want %d", price, tt.wantPrice)
			}
		})
	}
}

func TestComputeWithPolicy(t *testing.T) {
	settings := &policy.Settings{
		Carrier:    "KT",
		BaseMargin: d(30000),
		Addons: []policy.Addon{
			{Name: "music", Incentive: d(10000), Deduction: d(2000)},
		},
		Insurance: []policy.Insurance{
			{Name: "care basic", MinPrice: d(0), MaxPrice: d(2000000), Incentive: d(5000), Deduction: d(1000)},
		},
		Specials: []policy.Special{
			{Name: "weekend", Addition: d(20000), Active: true},
			{Name: "stock", Deduction: d(7000), Active: true},
			{Name: "expired", Addition: d(99000), Active: false},
		},
	}
	rebate := keyindex.Build([]keyindex.Row{{Model: "A1", Label: "기변", Value: d(100000)}})
	calc := NewCalculator("KT", settings, nil, map[string]Lookup{"g": rebate}, PlanGroups{Default: "g"})

	got, err := calc.Compute(device("A1", "Galaxy A1", 400000), "", opening.DeviceChange)
	if err != nil {
		t.Fatal(err)
	}
	// 100000 - 30000 + 10000 + 5000 + 20000
	if !got.StoreSupport.Equal(d(105000)) {
		t.Errorf("StoreSupport = %s", got.StoreSupport)
	}
	// 400000 - 0 - 105000
	if !got.PurchasePrice.Equal(d(295000)) {
		t.Errorf("PurchasePrice = %s", got.PurchasePrice)
	}
	// 30000 + 2000 + 1000 + 7000
	if !got.PolicyMargin.Equal(d(40000)) {
		t.Errorf("PolicyMargin = %s", got.PolicyMargin)
	}
	if got.Insurance != "care basic" {
		t.Errorf("Insurance = %q", got.Insurance)
	}
}

func TestComputeRejectsMetaTypes(t *testing.T) {
	calc := NewCalculator("SK", nil, nil, nil, PlanGroups{Default: "g"})
	if _, err := calc.Compute(device("A1", "", 100), "", opening.AllTypes); err == nil {
		t.Error("AllTypes is not priceable directly")
	}

	results := calc.ComputeAll(device("A1", "", 100), "", opening.AllTypes)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range opening.Concrete {
		if results[i].OpeningType != want {
			t.Errorf("results[%d] = %s, want %s", i, results[i].OpeningType, want)
		}
	}

	combined := calc.ComputeAll(device("A1", "", 100), "", opening.CombinedNewOrChange)
	if len(combined) != 2 || combined[0].OpeningType != opening.NewLine || combined[1].OpeningType != opening.DeviceChange {
		t.Errorf("combined expansion = %+v", combined)
	}
}

func TestSelectPlanGroup(t *testing.T) {
	groups := PlanGroups{Default: "high", Budget: "low"}
	tests := []struct {
		name   string
		tags   []string
		groups PlanGroups
		want   string
	}{
		{"untagged", nil, groups, "high"},
		{"budget", []string{tables.TagBudget}, groups, "low"},
		{"budget and premium", []string{tables.TagBudget, tables.TagPremium}, groups, "high"},
		{"budget without low tier", []string{tables.TagBudget}, PlanGroups{Default: "high"}, "high"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectPlanGroup(device("X", "", 0, tt.tags...), tt.groups); got != tt.want {
				t.Errorf("SelectPlanGroup = %q, want %q", got, tt.want)
			}
		})
	}
}
