package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "subsidy-recon/internal/errors"
)

type fakeSource struct {
	mu      sync.Mutex
	ranges  map[string][][]any
	gets    int
	batches int
}

func (f *fakeSource) Get(_ context.Context, ref string) ([][]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	rows, ok := f.ranges[ref]
	if !ok {
		return nil, errs.NotFound("range", ref)
	}
	return rows, nil
}

func (f *fakeSource) BatchGet(ctx context.Context, refs []string) ([][][]any, error) {
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()
	out := make([][][]any, len(refs))
	for i, ref := range refs {
		f.mu.Lock()
		rows, ok := f.ranges[ref]
		f.mu.Unlock()
		if !ok {
			return nil, errs.NotFound("range", ref)
		}
		out[i] = rows
	}
	return out, nil
}

func TestTablesGetIsCached(t *testing.T) {
	g, _ := newTestGateway(t, testConfig())
	src := &fakeSource{ranges: map[string][][]any{
		"SK_models!A:F": {{"모델명"}, {"SM-S928N"}},
	}}
	tbl := g.Tables(src, "sheet-1")

	for i := 0; i < 3; i++ {
		rows, err := tbl.Get(context.Background(), "SK_models!A:F")
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	}
	assert.Equal(t, 1, src.gets)

	_, err := tbl.Get(context.Background(), "missing!A:B")
	assert.True(t, errs.IsType(err, errs.TypeNotFound))
}

func TestTablesBatchPrimesSingleRanges(t *testing.T) {
	g, _ := newTestGateway(t, testConfig())
	src := &fakeSource{ranges: map[string][][]any{
		"support": {{"모델명", "010"}, {"A", "1"}},
		"rebate":  {{"모델명", "010"}, {"A", "2"}},
	}}
	tbl := g.Tables(src, "sheet-1")

	out, err := tbl.BatchGet(context.Background(), []string{"support", "rebate"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "2", out[1][1][1])

	rows, err := tbl.Get(context.Background(), "rebate")
	require.NoError(t, err)
	assert.Equal(t, "2", rows[1][1])
	assert.Equal(t, 0, src.gets, "single-range read served from the batch")
	assert.Equal(t, 1, src.batches)
}

func TestTablesNamespacesDoNotCollide(t *testing.T) {
	g, _ := newTestGateway(t, testConfig())
	a := g.Tables(&fakeSource{ranges: map[string][][]any{"r": {{"a"}}}}, "sheet-a")
	b := g.Tables(&fakeSource{ranges: map[string][][]any{"r": {{"b"}}}}, "sheet-b")

	ra, err := a.Get(context.Background(), "r")
	require.NoError(t, err)
	rb, err := b.Get(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, "a", ra[0][0])
	assert.Equal(t, "b", rb[0][0])
}
