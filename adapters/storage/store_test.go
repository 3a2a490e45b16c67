package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsidy-recon/core/opening"
	"subsidy-recon/core/reconcile"
	"subsidy-recon/core/subsidy"
	errs "subsidy-recon/internal/errors"
)

func result(model string, t opening.Type, price int64) subsidy.Result {
	return subsidy.Result{
		Carrier:        "SK",
		Model:          model,
		NormalizedCode: model,
		PlanGroup:      "high",
		OpeningType:    t,
		PurchasePrice:  decimal.NewFromInt(price),
	}
}

func run(carrier string, at time.Time, results ...subsidy.Result) *StoredRun {
	return &StoredRun{RunID: "r", Carrier: carrier, CreatedAt: at, Results: results}
}

func stores(t *testing.T) map[string]Store {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			first := run("SK", base, result("sms928n", opening.PortIn, 610000))
			require.NoError(t, s.Save(ctx, first))
			assert.NotEmpty(t, first.ID)
			assert.Equal(t, 1, first.ResultCount)

			second := run("SK", base.Add(time.Hour), result("sms928n", opening.PortIn, 590000))
			require.NoError(t, s.Save(ctx, second))
			require.NoError(t, s.Save(ctx, run("KT", base.Add(2*time.Hour))))

			got, err := s.Get(ctx, first.ID)
			require.NoError(t, err)
			require.Len(t, got.Results, 1)
			assert.Equal(t, opening.PortIn, got.Results[0].OpeningType)
			assert.True(t, got.Results[0].PurchasePrice.Equal(decimal.NewFromInt(610000)))

			all, err := s.List(ctx, nil)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "KT", all[0].Carrier, "newest first")
			assert.Empty(t, all[0].Results)

			sk, err := s.List(ctx, &ListFilter{Carrier: "SK", Limit: 1, Offset: 1})
			require.NoError(t, err)
			require.Len(t, sk, 1)
			assert.Equal(t, first.ID, sk[0].ID)

			latest, err := s.GetLatest(ctx, "SK")
			require.NoError(t, err)
			assert.Equal(t, second.ID, latest.ID)
			assert.Len(t, latest.Results, 1)

			_, err = s.GetLatest(ctx, "LG")
			assert.True(t, errs.IsType(err, errs.TypeNotFound))

			require.NoError(t, s.Delete(ctx, first.ID))
			_, err = s.Get(ctx, first.ID)
			assert.True(t, errs.IsType(err, errs.TypeNotFound))
			assert.True(t, errs.IsType(s.Delete(ctx, first.ID), errs.TypeNotFound))

			require.NoError(t, s.Close())
		})
	}
}

func TestSaveRejectsInvalidRun(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.True(t, errs.IsType(s.Save(context.Background(), nil), errs.TypeInput))
			assert.True(t, errs.IsType(s.Save(context.Background(), &StoredRun{}), errs.TypeInput))
		})
	}
}

func TestCompare(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	oldRun := run("SK", base,
		result("sms928n", opening.PortIn, 610000),
		result("sms928n", opening.NewLine, 700000),
		result("sma155n", opening.NewLine, 0),
	)
	newRun := run("SK", base.Add(time.Hour),
		result("sms928n", opening.PortIn, 580000),
		result("sms928n", opening.NewLine, 700000),
		result("smf956n", opening.PortIn, 900000),
	)
	require.NoError(t, s.Save(ctx, oldRun))
	require.NoError(t, s.Save(ctx, newRun))

	cmp, err := s.Compare(ctx, oldRun.ID, newRun.ID)
	require.NoError(t, err)
	require.Len(t, cmp.Changed, 1)
	assert.Equal(t, opening.PortIn, cmp.Changed[0].OpeningType)
	assert.True(t, cmp.Changed[0].Delta.Equal(decimal.NewFromInt(-30000)))
	assert.Equal(t, 1, cmp.Unchanged)
	assert.Equal(t, []string{"smf956n|high|PortIn"}, cmp.Added)
	assert.Equal(t, []string{"sma155n|high|NewLine"}, cmp.Removed)

	_, err = s.Compare(ctx, oldRun.ID, "missing")
	assert.True(t, errs.IsType(err, errs.TypeNotFound))
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	r := run("SK", time.Now(), result("sms928n", opening.PortIn, 1))
	require.NoError(t, s.Save(ctx, r))

	r.Results[0].PurchasePrice = decimal.NewFromInt(2)
	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.Results[0].PurchasePrice.Equal(decimal.NewFromInt(1)))
}

func TestFromReport(t *testing.T) {
	finished := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	report := &reconcile.Report{
		RunID:      "run-1",
		FinishedAt: finished,
		Carriers: []reconcile.CarrierReport{
			{
				Carrier:      "SK",
				State:        reconcile.Done,
				Devices:      2,
				Results:      []subsidy.Result{result("sms928n", opening.PortIn, 1)},
				Fingerprints: map[string]string{"SK_models": "abc"},
			},
			{Carrier: "KT", State: reconcile.Failed},
		},
	}

	runs := FromReport(report)
	require.Len(t, runs, 1)
	assert.Equal(t, "SK", runs[0].Carrier)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, finished, runs[0].CreatedAt)
	assert.Equal(t, "2", runs[0].Metadata["devices"])
	assert.NotEmpty(t, runs[0].Fingerprint)
	assert.Equal(t, runs[0].ID, FromReport(report)[0].ID, "saving a report twice overwrites")
}

func TestStoreFactory(t *testing.T) {
	s, err := StoreFactory(BackendMemory, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = StoreFactory(BackendFile, map[string]string{"path": t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = StoreFactory(BackendPostgres, map[string]string{})
	assert.True(t, errs.IsType(err, errs.TypeConfig))

	_, err = StoreFactory(BackendPostgres, map[string]string{"dsn": "postgres://x", "retries": "many"})
	assert.True(t, errs.IsType(err, errs.TypeConfig))

	_, err = StoreFactory("redis", nil)
	assert.True(t, errs.IsType(err, errs.TypeConfig))
}
