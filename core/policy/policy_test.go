package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	errs "subsidy-recon/internal/errors"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestFromTables(t *testing.T) {
	s, issues, err := FromTables("SK", Ranges{
		Margin: [][]any{
			{"항목", "금액"},
			{"기본마진", "50,000"},
			{"플립폴드보험우선", "Y"},
		},
		Addons: [][]any{
			{"부가서비스", "월정액", "유치수수료", "차감"},
			{"V컬러링", "3,300", "10,000", "0"},
			{"FLO", "7,900", "15,000", "5,000"},
			{"", "", "", ""},
		},
		Insurance: [][]any{
			{"보험상품", "최소출고가", "최대출고가", "유치수수료", "차감", "플립폴드"},
			{"폰케어 폴드", "1,000,000", "3,000,000", "20,000", "0", "Y"},
			{"폰케어 일반", "0", "1,500,000", "12,000", "3,000", ""},
		},
		Specials: [][]any{
			{"정책명", "금액", "적용"},
			{"주말 추가", "30,000", "Y"},
			{"재고 차감", "-10,000", "Y"},
			{"종료 정책", "99,000", "N"},
		},
	})
	if err != nil {
		t.Fatalf("FromTables: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("unexpected issues: %v", issues)
	}

	if !s.BaseMargin.Equal(d(50000)) {
		t.Errorf("BaseMargin = %s", s.BaseMargin)
	}
	if !s.PreferFlipFoldInsurance {
		t.Error("expected flip/fold preference from margin table")
	}
	if !s.AddonIncentiveSum().Equal(d(25000)) || !s.AddonDeductionSum().Equal(d(5000)) {
		t.Errorf("addon sums = %s / %s", s.AddonIncentiveSum(), s.AddonDeductionSum())
	}
	if len(s.Insurance) != 2 || !s.Insurance[0].FlipFold || s.Insurance[1].FlipFold {
		t.Errorf("insurance = %+v", s.Insurance)
	}
	if !s.SpecialAdditionSum().Equal(d(30000)) {
		t.Errorf("SpecialAdditionSum = %s, inactive policy must be excluded", s.SpecialAdditionSum())
	}
	if !s.SpecialDeductionSum().Equal(d(10000)) {
		t.Errorf("SpecialDeductionSum = %s", s.SpecialDeductionSum())
	}
}

func TestFromTablesSchemaDrift(t *testing.T) {
	_, _, err := FromTables("KT", Ranges{
		Addons: [][]any{{"요금", "유치수수료"}},
	})
	if !errs.IsType(err, errs.TypeMalformedRange) {
		t.Errorf("expected malformed range, got %v", err)
	}
}

func TestFromTablesReportsBadCells(t *testing.T) {
	s, issues, err := FromTables("LG", Ranges{
		Addons: [][]any{
			{"부가서비스", "유치수수료"},
			{"A", "abc"},
			{"B", "1000"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 1 || issues[0].Row != 2 {
		t.Errorf("issues = %v", issues)
	}
	if len(s.Addons) != 1 || s.Addons[0].Name != "B" {
		t.Errorf("addons = %+v", s.Addons)
	}
}

const policyHCL = `
carrier "SK" {
  base_margin                = 50000
  prefer_flip_fold_insurance = true
  flip_fold_keywords         = ["Z플립", "Z폴드"]

  addon "vcoloring" {
    fee       = 3300
    incentive = 10000
  }

  insurance "fold care" {
    min_price = 1500000
    max_price = 3000000
    incentive = 20000
    flip_fold = true
  }

  special "weekend" {
    addition = 30000
  }

  special "expired" {
    addition = 90000
    active   = false
  }
}

carrier "KT" {
  base_margin = 40000
}
`

func TestParseHCL(t *testing.T) {
	got, err := Parse([]byte(policyHCL), "policy.hcl")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 carriers, got %d", len(got))
	}

	sk := got["SK"]
	if !sk.BaseMargin.Equal(d(50000)) || !sk.PreferFlipFoldInsurance {
		t.Errorf("SK settings = %+v", sk)
	}
	if !sk.IsFlipFold("갤럭시 Z플립6") || sk.IsFlipFold("갤럭시 S24") {
		t.Error("configured keywords must drive flip/fold detection")
	}
	if !sk.SpecialAdditionSum().Equal(d(30000)) {
		t.Errorf("active specials default to true; got sum %s", sk.SpecialAdditionSum())
	}
	if len(sk.Insurance) != 1 || !sk.Insurance[0].Covers(d(2000000)) || sk.Insurance[0].Covers(d(1000000)) {
		t.Errorf("insurance = %+v", sk.Insurance)
	}
	if !got["KT"].BaseMargin.Equal(d(40000)) {
		t.Errorf("KT base margin = %s", got["KT"].BaseMargin)
	}
}

func TestParseHCLErrors(t *testing.T) {
	if _, err := Parse([]byte(`carrier "SK" { base_margin = }`), "bad.hcl"); !errs.IsType(err, errs.TypeConfig) {
		t.Errorf("expected config error for syntax error, got %v", err)
	}
	dup := `
carrier "SK" { base_margin = 1 }
carrier "SK" { base_margin = 2 }
`
	if _, err := Parse([]byte(dup), "dup.hcl"); err == nil {
		t.Error("expected duplicate carrier to fail")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.hcl")
	if err := os.WriteFile(path, []byte(policyHCL), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, ok := got["SK"]; !ok {
		t.Error("expected SK carrier")
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.hcl")); !errs.IsType(err, errs.TypeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDefaultKeywords(t *testing.T) {
	s := Empty("LG")
	if !s.IsFlipFold("Galaxy Z Flip6") || !s.IsFlipFold("갤럭시 폴드6") {
		t.Error("default keywords must detect flip/fold names")
	}
	if s.IsFlipFold("") {
		t.Error("empty name is not flip/fold")
	}
}
