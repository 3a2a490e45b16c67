package tables

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	errs "subsidy-recon/internal/errors"
)

// CellString renders a cell as text
func CellString(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case decimal.Decimal:
		return v.String()
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(cell)
}

var amountNoise = strings.NewReplacer(",", "", "원", "", "₩", "", " ", "", "\u00a0", "")

// ParseAmount reads a money cell. Blank cells and "-" are zero; "(1,000)"
// is negative; thousands separators and currency marks are ignored.
func ParseAmount(cell any) (decimal.Decimal, error) {
	switch v := cell.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case int32:
		return decimal.NewFromInt32(v), nil
	}

	s := amountNoise.Replace(strings.TrimSpace(CellString(cell)))
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errs.Wrapf(errs.TypeInput, err, "invalid amount %q", CellString(cell))
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseBool reads a flag cell, returning def for blanks
func ParseBool(cell any, def bool) bool {
	if b, ok := cell.(bool); ok {
		return b
	}
	s := strings.ToLower(strings.TrimSpace(CellString(cell)))
	switch s {
	case "":
		return def
	case "y", "yes", "true", "1", "o", "✓", "v", "on", "적용", "활성", "사용":
		return true
	case "n", "no", "false", "0", "x", "off", "미적용", "비활성", "미사용":
		return false
	}
	return def
}

// IsBlankRow reports whether every cell is empty
func IsBlankRow(row []any) bool {
	for _, c := range row {
		if strings.TrimSpace(CellString(c)) != "" {
			return false
		}
	}
	return true
}
