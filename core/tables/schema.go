// Package tables turns raw tabular ranges into named records.
//
// Every table kind has a Schema. A schema is bound once per fetched range
// against its header row, producing a ColumnMap; a required column that
// cannot be found fails the whole table instead of silently misreading
// positions.
package tables

import (
	"context"
	"fmt"
	"strings"

	"subsidy-recon/core/opening"
	errs "subsidy-recon/internal/errors"
)

// Source is the tabular capability the core consumes. The first row of every
// range is a header. Errors must classify through internal/errors so the
// gateway can tell quota failures from fatal ones.
type Source interface {
	Get(ctx context.Context, ref string) ([][]any, error)
	BatchGet(ctx context.Context, refs []string) ([][][]any, error)
}

// Kind identifies a table layout
type Kind string

const (
	KindModels    Kind = "models"
	KindSupport   Kind = "support"
	KindRebate    Kind = "rebate"
	KindMargin    Kind = "margin"
	KindAddons    Kind = "addons"
	KindInsurance Kind = "insurance"
	KindSpecials  Kind = "specials"
)

// ParseKind accepts a kind name
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	_, ok := schemas[k]
	return k, ok
}

// Field is one named column
type Field struct {
	Name     string
	Aliases  []string
	Required bool
}

// Schema lists the fields of a table kind
type Schema struct {
	Kind   Kind
	Fields []Field
}

const (
	FieldModel        = "model"
	FieldName         = "name"
	FieldManufacturer = "manufacturer"
	FieldFactoryPrice = "factory_price"
	FieldTags         = "tags"
	FieldType         = "type"
	FieldAmount       = "amount"
	FieldFee          = "fee"
	FieldIncentive    = "incentive"
	FieldDeduction    = "deduction"
	FieldAddition     = "addition"
	FieldMinPrice     = "min_price"
	FieldMaxPrice     = "max_price"
	FieldFlipFold     = "flip_fold"
	FieldActive       = "active"
)

var (
	modelField = Field{Name: FieldModel, Required: true,
		Aliases: []string{"model", "모델", "모델명", "모델코드", "code", "model_code"}}
	typeField = Field{Name: FieldType,
		Aliases: []string{"type", "opening_type", "유형", "개통유형", "가입유형"}}
	nameField = Field{Name: FieldName,
		Aliases: []string{"name", "display_name", "펫네임", "기기명", "단말기명", "상품명", "항목", "item"}}
)

var schemas = map[Kind]Schema{
	KindModels: {Kind: KindModels, Fields: []Field{
		modelField,
		nameField,
		{Name: FieldManufacturer, Aliases: []string{"manufacturer", "maker", "제조사"}},
		{Name: FieldFactoryPrice, Required: true, Aliases: []string{"factory_price", "price", "출고가"}},
		{Name: FieldTags, Aliases: []string{"tags", "tag", "구분", "등급"}},
	}},
	KindSupport: {Kind: KindSupport, Fields: []Field{
		modelField,
		nameField,
		typeField,
		{Name: FieldAmount, Aliases: []string{"amount", "support", "공시지원금", "지원금", "지원금액", "금액"}},
	}},
	KindRebate: {Kind: KindRebate, Fields: []Field{
		modelField,
		nameField,
		typeField,
		{Name: FieldAmount, Aliases: []string{"amount", "rebate", "리베이트", "정책", "지원금액", "금액"}},
	}},
	KindMargin: {Kind: KindMargin, Fields: []Field{
		{Name: FieldName, Required: true, Aliases: []string{"name", "item", "항목", "구분"}},
		{Name: FieldAmount, Required: true, Aliases: []string{"amount", "value", "금액", "마진"}},
	}},
	KindAddons: {Kind: KindAddons, Fields: []Field{
		{Name: FieldName, Required: true, Aliases: []string{"name", "addon", "부가서비스", "서비스명"}},
		{Name: FieldFee, Aliases: []string{"fee", "요금", "월정액"}},
		{Name: FieldIncentive, Aliases: []string{"incentive", "인센티브", "유치수수료"}},
		{Name: FieldDeduction, Aliases: []string{"deduction", "차감", "미유치차감"}},
	}},
	KindInsurance: {Kind: KindInsurance, Fields: []Field{
		{Name: FieldName, Required: true, Aliases: []string{"name", "insurance", "보험상품", "상품명"}},
		{Name: FieldMinPrice, Aliases: []string{"min_price", "min", "최소출고가", "출고가최소"}},
		{Name: FieldMaxPrice, Aliases: []string{"max_price", "max", "최대출고가", "출고가최대"}},
		{Name: FieldFee, Aliases: []string{"fee", "요금", "월정액"}},
		{Name: FieldIncentive, Aliases: []string{"incentive", "인센티브", "유치수수료"}},
		{Name: FieldDeduction, Aliases: []string{"deduction", "차감", "미유치차감"}},
		{Name: FieldFlipFold, Aliases: []string{"flip_fold", "flipfold", "플립폴드", "폴더블"}},
	}},
	KindSpecials: {Kind: KindSpecials, Fields: []Field{
		{Name: FieldName, Required: true, Aliases: []string{"name", "policy", "정책명", "항목"}},
		{Name: FieldAmount, Aliases: []string{"amount", "금액"}},
		{Name: FieldAddition, Aliases: []string{"addition", "추가", "추가금"}},
		{Name: FieldDeduction, Aliases: []string{"deduction", "차감", "차감금"}},
		{Name: FieldActive, Aliases: []string{"active", "is_active", "적용", "활성"}},
	}},
}

// SchemaFor returns the schema of a kind
func SchemaFor(kind Kind) (Schema, bool) {
	s, ok := schemas[kind]
	return s, ok
}

// ColumnMap is a schema bound to one header row
type ColumnMap struct {
	kind   Kind
	index  map[string]int
	header []string
}

// Bind resolves every field of the schema against header. A required field
// without a matching column is a schema-drift error.
func (s Schema) Bind(header []any) (*ColumnMap, error) {
	cm := &ColumnMap{
		kind:   s.Kind,
		index:  make(map[string]int, len(s.Fields)),
		header: make([]string, len(header)),
	}
	for i, cell := range header {
		cm.header[i] = strings.TrimSpace(CellString(cell))
	}

	for _, f := range s.Fields {
		col := -1
		for i, h := range cm.header {
			if matchesAlias(h, f.Aliases) {
				col = i
				break
			}
		}
		if col < 0 {
			if f.Required {
				return nil, errs.MalformedRange(string(s.Kind),
					fmt.Sprintf("missing required column %q (header: %s)", f.Name, strings.Join(cm.header, ", ")))
			}
			continue
		}
		cm.index[f.Name] = col
	}
	return cm, nil
}

func matchesAlias(header string, aliases []string) bool {
	h := opening.Fold(header)
	if h == "" {
		return false
	}
	for _, a := range aliases {
		if h == opening.Fold(a) {
			return true
		}
	}
	return false
}

// Kind returns the kind the map was bound for
func (cm *ColumnMap) Kind() Kind {
	return cm.kind
}

// Has reports whether field was found in the header
func (cm *ColumnMap) Has(field string) bool {
	_, ok := cm.index[field]
	return ok
}

// Column returns the position of field
func (cm *ColumnMap) Column(field string) (int, bool) {
	i, ok := cm.index[field]
	return i, ok
}

// Unbound returns the positions and header text of columns no field claimed
func (cm *ColumnMap) Unbound() ([]int, []string) {
	claimed := make(map[int]bool, len(cm.index))
	for _, i := range cm.index {
		claimed[i] = true
	}
	var cols []int
	var names []string
	for i, h := range cm.header {
		if claimed[i] || h == "" {
			continue
		}
		cols = append(cols, i)
		names = append(names, h)
	}
	return cols, names
}

// Cell returns the raw cell for field, or nil
func (cm *ColumnMap) Cell(row []any, field string) any {
	i, ok := cm.index[field]
	if !ok || i >= len(row) {
		return nil
	}
	return row[i]
}

// String returns the trimmed text of field
func (cm *ColumnMap) String(row []any, field string) string {
	return strings.TrimSpace(CellString(cm.Cell(row, field)))
}
