// Package opening classifies free-text transaction-type labels into the
// closed set of opening types used to key subsidy tables.
package opening

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Type is a contract action being priced
type Type int

const (
	// NewLine is a new subscription (010 / 신규)
	NewLine Type = iota + 1
	// PortIn is a number port from another carrier (MNP / 번호이동)
	PortIn
	// DeviceChange is a device upgrade on the same carrier (기변)
	DeviceChange
	// CombinedNewOrChange is a single row covering NewLine and DeviceChange
	CombinedNewOrChange
	// AllTypes is a blanket row covering every concrete type. It is expanded
	// at index-build time and never matched as a final value.
	AllTypes
)

// Concrete lists the types a result can be priced for, in canonical order
var Concrete = []Type{NewLine, PortIn, DeviceChange}

var typeNames = map[Type]string{
	NewLine:             "NewLine",
	PortIn:              "PortIn",
	DeviceChange:        "DeviceChange",
	CombinedNewOrChange: "CombinedNewOrChange",
	AllTypes:            "AllTypes",
}

// String returns the canonical name
func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "Unknown"
}

// IsConcrete reports whether t can be a matched value
func (t Type) IsConcrete() bool {
	return t == NewLine || t == PortIn || t == DeviceChange
}

// Expand returns the concrete types t stands for
func (t Type) Expand() []Type {
	switch t {
	case NewLine, PortIn, DeviceChange:
		return []Type{t}
	case CombinedNewOrChange:
		return []Type{NewLine, DeviceChange}
	case AllTypes:
		return []Type{NewLine, PortIn, DeviceChange}
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Type) UnmarshalText(text []byte) error {
	v, ok := ParseType(string(text))
	if !ok {
		return fmt.Errorf("invalid opening type %q", text)
	}
	*t = v
	return nil
}

// ParseType accepts canonical names ("PortIn", case-insensitive) and raw
// labels. Raw labels that classify to several types map to
// CombinedNewOrChange or AllTypes. A label with no opening-type token is
// rejected rather than defaulted.
func ParseType(s string) (Type, bool) {
	key := fold(s)
	if key == "" {
		return 0, false
	}
	for t, name := range typeNames {
		if strings.ToLower(name) == key {
			return t, true
		}
	}
	switch key {
	case "new", "newline":
		return NewLine, true
	case "port", "portin", "mnp":
		return PortIn, true
	case "change", "devicechange", "upgrade":
		return DeviceChange, true
	case "combined":
		return CombinedNewOrChange, true
	case "all":
		return AllTypes, true
	}
	set, ok := Recognize(s)
	if !ok {
		return 0, false
	}
	return set.Type(), true
}

// Set is a set of concrete opening types
type Set uint8

const (
	setNewLine Set = 1 << iota
	setPortIn
	setDeviceChange
)

// All is the set a blanket label classifies to
const All = setNewLine | setPortIn | setDeviceChange

// SetOf builds a set from types, expanding meta types
func SetOf(types ...Type) Set {
	var s Set
	for _, t := range types {
		for _, c := range t.Expand() {
			s |= bit(c)
		}
	}
	return s
}

func bit(t Type) Set {
	switch t {
	case NewLine:
		return setNewLine
	case PortIn:
		return setPortIn
	case DeviceChange:
		return setDeviceChange
	}
	return 0
}

// Has reports whether t (concrete) is in the set
func (s Set) Has(t Type) bool {
	b := bit(t)
	return b != 0 && s&b == b
}

// IsAll reports whether the set covers every concrete type
func (s Set) IsAll() bool {
	return s == All
}

// Combined reports whether the set holds NewLine and DeviceChange together
func (s Set) Combined() bool {
	return s.Has(NewLine) && s.Has(DeviceChange)
}

// Types returns the members in canonical order
func (s Set) Types() []Type {
	var out []Type
	for _, t := range Concrete {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// Type collapses the set to a single Type, using the meta values for
// multi-member sets. NewLine+PortIn has no meta value and reports NewLine.
func (s Set) Type() Type {
	switch {
	case s.IsAll():
		return AllTypes
	case s.Combined() && !s.Has(PortIn):
		return CombinedNewOrChange
	case s.Has(PortIn) && !s.Has(NewLine) && !s.Has(DeviceChange):
		return PortIn
	case s.Has(DeviceChange) && !s.Has(NewLine):
		return DeviceChange
	}
	return NewLine
}

// String renders the members joined by "+"
func (s Set) String() string {
	types := s.Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, "+")
}

var (
	blanketTokens      = []string{"전유형", "전체", "모두"}
	newLineTokens      = []string{"010", "신규"}
	portInTokens       = []string{"mnp", "번호이동"}
	deviceChangeTokens = []string{"기변", "기기변경"}
)

// Classify maps a raw label to its opening types.
//
// Blanket labels (전유형/전체/모두) win over everything else. Otherwise each
// matching token family adds its type, and a label with no recognizable token
// defaults to NewLine.
func Classify(label string) Set {
	if s, ok := Recognize(label); ok {
		return s
	}
	return setNewLine
}

// Recognize is Classify without the NewLine fallback: ok is false when the
// label holds no opening-type token at all.
func Recognize(label string) (Set, bool) {
	text := fold(label)

	if containsAny(text, blanketTokens) {
		return All, true
	}

	var s Set
	if containsAny(text, newLineTokens) {
		s |= setNewLine
	}
	if containsAny(text, portInTokens) {
		s |= setPortIn
	}
	if containsAny(text, deviceChangeTokens) {
		s |= setDeviceChange
	}
	return s, s != 0
}

// IsAllTypes reports whether label is a blanket label
func IsAllTypes(label string) bool {
	return Classify(label).IsAll()
}

// Fold returns the comparison form of a label: NFC, lowercase, no whitespace.
// Literal label keys in the index are stored in this form.
func Fold(label string) string {
	return fold(label)
}

func fold(label string) string {
	lowered := strings.ToLower(norm.NFC.String(label))
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}
