// Package determinism provides the ordering, de-duplication and hashing
// primitives that keep reconciliation output reproducible run to run.
package determinism

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sort"
)

// SortedKeys returns the keys of m in ascending order
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// OrderBy stably sorts items by their position in a canonical order. Items
// whose key is absent from order keep their source order after every ranked
// item. An empty order leaves items untouched.
func OrderBy[T any](items []T, order []string, key func(T) string) {
	if len(order) == 0 {
		return
	}
	rank := make(map[string]int, len(order))
	for i, k := range order {
		if _, ok := rank[k]; !ok {
			rank[k] = i
		}
	}
	unranked := len(order)
	sort.SliceStable(items, func(i, j int) bool {
		ri, ok := rank[key(items[i])]
		if !ok {
			ri = unranked
		}
		rj, ok := rank[key(items[j])]
		if !ok {
			rj = unranked
		}
		return ri < rj
	})
}

// DedupeFirst drops every item whose key was already seen, keeping the first
// occurrence. The input slice is not modified.
func DedupeFirst[T any](items []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		k := key(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// StableID is a hash-based unique identifier that's deterministic
type StableID string

// IDGenerator generates stable, deterministic IDs
type IDGenerator struct {
	namespace string
}

// NewIDGenerator creates an ID generator with a namespace
func NewIDGenerator(namespace string) *IDGenerator {
	return &IDGenerator{namespace: namespace}
}

// Generate creates a stable ID from inputs
func (g *IDGenerator) Generate(parts ...string) StableID {
	h := sha256.New()
	h.Write([]byte(g.namespace))
	h.Write([]byte{0})
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return StableID(hex.EncodeToString(h.Sum(nil))[:16])
}

// Fingerprint hashes key/value pairs in sorted key order. Two maps with the
// same content always produce the same fingerprint.
func Fingerprint(pairs map[string]string) string {
	h := sha256.New()
	for _, k := range SortedKeys(pairs) {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(pairs[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
