package tables

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"subsidy-recon/core/keyindex"
	"subsidy-recon/core/modelkey"
	"subsidy-recon/core/opening"
	errs "subsidy-recon/internal/errors"
)

// RebateScale converts rebate cells, kept in units of 10,000, to currency
var RebateScale = decimal.NewFromInt(10000)

// Device tags that steer default plan-group selection
const (
	TagBudget  = "budget"
	TagPremium = "premium"
)

var tagSynonyms = map[string]string{
	"budget":  TagBudget,
	"저가":      TagBudget,
	"중저가":     TagBudget,
	"보급형":     TagBudget,
	"premium": TagPremium,
	"프리미엄":    TagPremium,
	"고가":      TagPremium,
	"플래그십":    TagPremium,
}

// Device is one entry of a carrier's canonical model list
type Device struct {
	RawCode        string          `json:"raw_code"`
	NormalizedCode string          `json:"normalized_code"`
	DisplayName    string          `json:"display_name"`
	Manufacturer   string          `json:"manufacturer,omitempty"`
	FactoryPrice   decimal.Decimal `json:"factory_price"`
	Tags           []string        `json:"tags,omitempty"`
}

// HasTag reports whether the device carries tag
func (d Device) HasTag(tag string) bool {
	return slices.Contains(d.Tags, tag)
}

// Name returns the display name, or the raw code when the list has none
func (d Device) Name() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.RawCode
}

// Issue is a row skipped during ingestion. Issues do not fail the table.
type Issue struct {
	Row    int
	Reason string
}

func (i Issue) String() string {
	return fmt.Sprintf("row %d: %s", i.Row, i.Reason)
}

// SplitHeader separates the header row from the body
func SplitHeader(rows [][]any) ([]any, [][]any) {
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], rows[1:]
}

// Bind splits the header off rows and binds the kind's schema to it
func Bind(kind Kind, rows [][]any) (*ColumnMap, [][]any, error) {
	schema, ok := SchemaFor(kind)
	if !ok {
		return nil, nil, errs.Input(fmt.Sprintf("unknown table kind %q", kind))
	}
	header, body := SplitHeader(rows)
	if header == nil {
		return nil, nil, errs.MalformedRange(string(kind), "range is empty, expected a header row")
	}
	cm, err := schema.Bind(header)
	if err != nil {
		return nil, nil, err
	}
	return cm, body, nil
}

// Devices reads a canonical model list in source order
func Devices(rows [][]any) ([]Device, []Issue, error) {
	cm, body, err := Bind(KindModels, rows)
	if err != nil {
		return nil, nil, err
	}

	var devices []Device
	var issues []Issue
	for i, row := range body {
		rowNum := i + 2
		if IsBlankRow(row) {
			continue
		}
		code := cm.String(row, FieldModel)
		if code == "" {
			issues = append(issues, Issue{Row: rowNum, Reason: "blank model code"})
			continue
		}
		price, err := ParseAmount(cm.Cell(row, FieldFactoryPrice))
		if err != nil {
			issues = append(issues, Issue{Row: rowNum, Reason: err.Error()})
			continue
		}
		devices = append(devices, Device{
			RawCode:        code,
			NormalizedCode: modelkey.Normalize(code),
			DisplayName:    cm.String(row, FieldName),
			Manufacturer:   cm.String(row, FieldManufacturer),
			FactoryPrice:   price,
			Tags:           parseTags(cm.String(row, FieldTags)),
		})
	}
	return devices, issues, nil
}

func parseTags(s string) []string {
	if s == "" {
		return nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '/' || r == '|' || r == ' '
	})
	var tags []string
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if canonical, ok := tagSynonyms[f]; ok {
			f = canonical
		}
		if f != "" && !slices.Contains(tags, f) {
			tags = append(tags, f)
		}
	}
	return tags
}

// SubsidyRows reads a support or rebate table into index rows, multiplying
// every amount by scale.
//
// A table with a type column is read as long rows (model | type | amount).
// Without one, each unclaimed column whose header names an opening type
// becomes a label column. Other unclaimed columns are skipped and reported
// as header issues.
func SubsidyRows(kind Kind, rows [][]any, scale decimal.Decimal) ([]keyindex.Row, []Issue, error) {
	if kind != KindSupport && kind != KindRebate {
		return nil, nil, errs.Input(fmt.Sprintf("table kind %q has no subsidy rows", kind))
	}
	cm, body, err := Bind(kind, rows)
	if err != nil {
		return nil, nil, err
	}

	if cm.Has(FieldType) {
		if !cm.Has(FieldAmount) {
			return nil, nil, errs.MalformedRange(string(kind), "type column present without an amount column")
		}
		return longRows(cm, body, scale)
	}
	return wideRows(cm, body, scale)
}

func longRows(cm *ColumnMap, body [][]any, scale decimal.Decimal) ([]keyindex.Row, []Issue, error) {
	var out []keyindex.Row
	var issues []Issue
	for i, row := range body {
		if IsBlankRow(row) {
			continue
		}
		model := cm.String(row, FieldModel)
		if model == "" {
			continue
		}
		amount, err := ParseAmount(cm.Cell(row, FieldAmount))
		if err != nil {
			issues = append(issues, Issue{Row: i + 2, Reason: err.Error()})
			continue
		}
		out = append(out, keyindex.Row{
			Model: model,
			Label: cm.String(row, FieldType),
			Value: amount.Mul(scale),
		})
	}
	return out, issues, nil
}

func wideRows(cm *ColumnMap, body [][]any, scale decimal.Decimal) ([]keyindex.Row, []Issue, error) {
	var cols []int
	var labels []string
	var issues []Issue
	if cm.Has(FieldAmount) {
		// A lone amount column without a type column is a blanket value.
		col, _ := cm.Column(FieldAmount)
		cols = append(cols, col)
		labels = append(labels, "전유형")
	}
	unbound, names := cm.Unbound()
	for j, col := range unbound {
		if _, ok := opening.Recognize(names[j]); !ok {
			issues = append(issues, Issue{Row: 1, Reason: fmt.Sprintf("column %q is not an opening type, skipped", names[j])})
			continue
		}
		cols = append(cols, col)
		labels = append(labels, names[j])
	}
	if len(cols) == 0 {
		return nil, nil, errs.MalformedRange(string(cm.Kind()), "no opening-type columns found")
	}

	var out []keyindex.Row
	for i, row := range body {
		if IsBlankRow(row) {
			continue
		}
		model := cm.String(row, FieldModel)
		if model == "" {
			continue
		}
		for j, col := range cols {
			if col >= len(row) || strings.TrimSpace(CellString(row[col])) == "" {
				continue
			}
			amount, err := ParseAmount(row[col])
			if err != nil {
				issues = append(issues, Issue{Row: i + 2, Reason: fmt.Sprintf("column %q: %v", labels[j], err)})
				continue
			}
			out = append(out, keyindex.Row{Model: model, Label: labels[j], Value: amount.Mul(scale)})
		}
	}
	return out, issues, nil
}
