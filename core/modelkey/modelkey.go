// Package modelkey canonicalizes device model identifiers.
//
// Model codes arrive from independently maintained tables in many shapes
// ("SM-S928N", "sms928n", "SM S928N", "SM_S928N"). Normalize maps them to one
// comparable form; Variants enumerates the spellings a lookup should try.
package modelkey

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize strips whitespace, hyphens and underscores and lowercases.
// It is total and idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(code string) string {
	if code == "" {
		return ""
	}

	folded := norm.NFC.String(strings.ToLower(norm.NFC.String(code)))

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r == '-' || r == '_' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

// Equal reports whether two codes identify the same model
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Variants returns the lookup candidates for code in the order they should be
// tried. The result is de-duplicated, never contains "", and depends only on
// the input.
func Variants(code string) []string {
	if strings.TrimSpace(code) == "" {
		return nil
	}

	v := newVariantSet()
	n := Normalize(code)

	v.add(code)
	v.add(strings.ToLower(code))
	v.add(strings.ToUpper(code))
	v.add(n)
	v.add(strings.ToLower(n))
	v.add(strings.ToUpper(n))

	// Hyphen removal keeps the rest of the spelling intact.
	if strings.Contains(code, "-") {
		dehyphen := strings.ReplaceAll(code, "-", "")
		v.add(dehyphen)
		v.add(strings.ToLower(dehyphen))
		v.add(strings.ToUpper(dehyphen))
	}

	for _, h := range hyphenated(n) {
		v.add(h)
		v.add(strings.ToUpper(h))
	}

	return v.list
}

// hyphenated inserts a hyphen after the leading letter prefix of a normalized
// code: "sms928n" yields "sms-928n" and the two-letter vendor form "sm-s928n".
func hyphenated(n string) []string {
	prefix := 0
	for _, r := range n {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			break
		}
		prefix++
	}
	if prefix == 0 || prefix == len(n) {
		return nil
	}

	out := []string{n[:prefix] + "-" + n[prefix:]}
	if prefix >= 3 {
		out = append(out, n[:2]+"-"+n[2:])
	}
	return out
}

type variantSet struct {
	seen map[string]struct{}
	list []string
}

func newVariantSet() *variantSet {
	return &variantSet{seen: make(map[string]struct{}, 12)}
}

func (s *variantSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.list = append(s.list, v)
}
