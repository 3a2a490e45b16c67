package gateway

import (
	"context"
	"strings"

	"subsidy-recon/core/tables"
	errs "subsidy-recon/internal/errors"
)

// Tables is a tables.Source whose reads go through the gateway
type Tables struct {
	g         *Gateway
	src       tables.Source
	namespace string
}

var _ tables.Source = (*Tables)(nil)

// Tables wraps src. namespace separates cache keys of different sources
// (typically the spreadsheet ID).
func (g *Gateway) Tables(src tables.Source, namespace string) *Tables {
	return &Tables{g: g, src: src, namespace: namespace}
}

// Key returns the cache key for a range reference
func (t *Tables) Key(ref string) string {
	return t.namespace + "!" + ref
}

// Get returns the rows of ref
func (t *Tables) Get(ctx context.Context, ref string) ([][]any, error) {
	return Schedule(ctx, t.g, t.Key(ref), func(ctx context.Context) ([][]any, error) {
		return t.src.Get(ctx, ref)
	})
}

// BatchGet returns the rows of every ref, aligned with refs. The batch is one
// upstream call cached under its own key; each range it returns also
// primes the single-range cache.
func (t *Tables) BatchGet(ctx context.Context, refs []string) ([][][]any, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	key := t.namespace + "!batch:" + strings.Join(refs, "|")
	return Schedule(ctx, t.g, key, func(ctx context.Context) ([][][]any, error) {
		out, err := t.src.BatchGet(ctx, refs)
		if err != nil {
			return nil, err
		}
		if len(out) != len(refs) {
			return nil, errs.Internal("batch response is not aligned with the request", nil).
				WithContext("requested", len(refs)).
				WithContext("returned", len(out))
		}
		for i, ref := range refs {
			t.g.Prime(t.Key(ref), out[i])
		}
		return out, nil
	})
}
