package policy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"subsidy-recon/core/opening"
	"subsidy-recon/core/tables"
)

// Ranges holds the raw policy tables of one carrier. Nil ranges are skipped.
type Ranges struct {
	Margin    [][]any
	Addons    [][]any
	Insurance [][]any
	Specials  [][]any
}

var (
	baseMarginNames     = []string{"base_margin", "basemargin", "margin", "기본마진", "마진"}
	preferFlipFoldNames = []string{"prefer_flip_fold_insurance", "플립폴드보험우선", "폴더블보험우선"}
)

// FromTables builds settings from the carrier's policy tables. Schema drift in
// any present table fails the whole snapshot; bad cells are reported as issues.
func FromTables(carrier string, r Ranges) (*Settings, []tables.Issue, error) {
	s := Empty(carrier)
	var issues []tables.Issue

	if r.Margin != nil {
		is, err := readMargin(s, r.Margin)
		if err != nil {
			return nil, nil, fmt.Errorf("margin table: %w", err)
		}
		issues = append(issues, is...)
	}
	if r.Addons != nil {
		is, err := readAddons(s, r.Addons)
		if err != nil {
			return nil, nil, fmt.Errorf("addon table: %w", err)
		}
		issues = append(issues, is...)
	}
	if r.Insurance != nil {
		is, err := readInsurance(s, r.Insurance)
		if err != nil {
			return nil, nil, fmt.Errorf("insurance table: %w", err)
		}
		issues = append(issues, is...)
	}
	if r.Specials != nil {
		is, err := readSpecials(s, r.Specials)
		if err != nil {
			return nil, nil, fmt.Errorf("special policy table: %w", err)
		}
		issues = append(issues, is...)
	}
	return s, issues, nil
}

func nameIn(name string, names []string) bool {
	n := opening.Fold(name)
	for _, candidate := range names {
		if n == opening.Fold(candidate) {
			return true
		}
	}
	return false
}

func readMargin(s *Settings, rows [][]any) ([]tables.Issue, error) {
	cm, body, err := tables.Bind(tables.KindMargin, rows)
	if err != nil {
		return nil, err
	}
	var issues []tables.Issue
	for i, row := range body {
		name := cm.String(row, tables.FieldName)
		switch {
		case nameIn(name, baseMarginNames):
			v, err := tables.ParseAmount(cm.Cell(row, tables.FieldAmount))
			if err != nil {
				issues = append(issues, tables.Issue{Row: i + 2, Reason: err.Error()})
				continue
			}
			s.BaseMargin = v
		case nameIn(name, preferFlipFoldNames):
			s.PreferFlipFoldInsurance = tables.ParseBool(cm.Cell(row, tables.FieldAmount), false)
		}
	}
	return issues, nil
}

type amountReader struct {
	cm     *tables.ColumnMap
	row    []any
	err    error
	column string
}

func (r *amountReader) get(field string) decimal.Decimal {
	if r.err != nil {
		return decimal.Zero
	}
	v, err := tables.ParseAmount(r.cm.Cell(r.row, field))
	if err != nil {
		r.err, r.column = err, field
	}
	return v
}

func (r *amountReader) issue(rowNum int) tables.Issue {
	return tables.Issue{Row: rowNum, Reason: fmt.Sprintf("column %s: %v", r.column, r.err)}
}

func readAddons(s *Settings, rows [][]any) ([]tables.Issue, error) {
	cm, body, err := tables.Bind(tables.KindAddons, rows)
	if err != nil {
		return nil, err
	}
	var issues []tables.Issue
	for i, row := range body {
		name := cm.String(row, tables.FieldName)
		if name == "" {
			continue
		}
		r := &amountReader{cm: cm, row: row}
		a := Addon{
			Name:      name,
			Fee:       r.get(tables.FieldFee),
			Incentive: r.get(tables.FieldIncentive),
			Deduction: r.get(tables.FieldDeduction),
		}
		if r.err != nil {
			issues = append(issues, r.issue(i+2))
			continue
		}
		s.Addons = append(s.Addons, a)
	}
	return issues, nil
}

func readInsurance(s *Settings, rows [][]any) ([]tables.Issue, error) {
	cm, body, err := tables.Bind(tables.KindInsurance, rows)
	if err != nil {
		return nil, err
	}
	var issues []tables.Issue
	for i, row := range body {
		name := cm.String(row, tables.FieldName)
		if name == "" {
			continue
		}
		r := &amountReader{cm: cm, row: row}
		ins := Insurance{
			Name:      name,
			MinPrice:  r.get(tables.FieldMinPrice),
			MaxPrice:  r.get(tables.FieldMaxPrice),
			Fee:       r.get(tables.FieldFee),
			Incentive: r.get(tables.FieldIncentive),
			Deduction: r.get(tables.FieldDeduction),
			FlipFold:  tables.ParseBool(cm.Cell(row, tables.FieldFlipFold), false),
		}
		if r.err != nil {
			issues = append(issues, r.issue(i+2))
			continue
		}
		s.Insurance = append(s.Insurance, ins)
	}
	return issues, nil
}

// readSpecials accepts either a signed amount column or separate
// addition/deduction columns.
func readSpecials(s *Settings, rows [][]any) ([]tables.Issue, error) {
	cm, body, err := tables.Bind(tables.KindSpecials, rows)
	if err != nil {
		return nil, err
	}
	var issues []tables.Issue
	for i, row := range body {
		name := cm.String(row, tables.FieldName)
		if name == "" {
			continue
		}
		r := &amountReader{cm: cm, row: row}
		sp := Special{
			Name:      name,
			Addition:  r.get(tables.FieldAddition),
			Deduction: r.get(tables.FieldDeduction),
			Active:    tables.ParseBool(cm.Cell(row, tables.FieldActive), true),
		}
		if cm.Has(tables.FieldAmount) {
			amount := r.get(tables.FieldAmount)
			if amount.IsNegative() {
				sp.Deduction = sp.Deduction.Add(amount.Neg())
			} else {
				sp.Addition = sp.Addition.Add(amount)
			}
		}
		if r.err != nil {
			issues = append(issues, r.issue(i+2))
			continue
		}
		s.Specials = append(s.Specials, sp)
	}
	return issues, nil
}
