// Package storage persists pricing runs for CRUD and UI collaborators.
// Supports file, in-memory and PostgreSQL backends.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"subsidy-recon/core/determinism"
	"subsidy-recon/core/opening"
	"subsidy-recon/core/reconcile"
	"subsidy-recon/core/subsidy"
	errs "subsidy-recon/internal/errors"
)

// Backend is a storage backend type
type Backend string

const (
	BackendFile     Backend = "file"
	BackendPostgres Backend = "postgres"
	BackendMemory   Backend = "memory"
)

// Store is the storage interface
type Store interface {
	// Save stores one carrier's priced run
	Save(ctx context.Context, run *StoredRun) error

	// Get retrieves a run with its results
	Get(ctx context.Context, id string) (*StoredRun, error)

	// List lists runs, newest first. Results are not loaded.
	List(ctx context.Context, filter *ListFilter) ([]*StoredRun, error)

	// Delete removes a run
	Delete(ctx context.Context, id string) error

	// GetLatest gets the latest run for a carrier
	GetLatest(ctx context.Context, carrier string) (*StoredRun, error)

	// Compare diffs purchase prices between two runs
	Compare(ctx context.Context, oldID, newID string) (*CompareResult, error)

	// Close closes the store
	Close() error
}

// StoredRun is one carrier's results from one pipeline run
type StoredRun struct {
	ID          string            `json:"id"`
	RunID       string            `json:"run_id"`
	Carrier     string            `json:"carrier"`
	Fingerprint string            `json:"fingerprint"`
	ResultCount int               `json:"result_count"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Results     []subsidy.Result  `json:"results,omitempty"`
}

// ListFilter filters run listing
type ListFilter struct {
	Carrier string
	Since   time.Time
	Until   time.Time
	Limit   int
	Offset  int
}

func (f *ListFilter) matches(r *StoredRun) bool {
	if f == nil {
		return true
	}
	if f.Carrier != "" && r.Carrier != f.Carrier {
		return false
	}
	if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

// page sorts newest first and applies offset/limit
func (f *ListFilter) page(runs []*StoredRun) []*StoredRun {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if f == nil {
		return runs
	}
	if f.Offset > 0 {
		if f.Offset >= len(runs) {
			return nil
		}
		runs = runs[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(runs) {
		runs = runs[:f.Limit]
	}
	return runs
}

// PriceChange is one result whose purchase price moved
type PriceChange struct {
	Model       string          `json:"model"`
	PlanGroup   string          `json:"plan_group"`
	OpeningType opening.Type    `json:"opening_type"`
	OldPrice    decimal.Decimal `json:"old_price"`
	NewPrice    decimal.Decimal `json:"new_price"`
	Delta       decimal.Decimal `json:"delta"`
}

// CompareResult is a comparison between two runs
type CompareResult struct {
	OldID     string        `json:"old_id"`
	NewID     string        `json:"new_id"`
	Changed   []PriceChange `json:"changed"`
	Added     []string      `json:"added,omitempty"`
	Removed   []string      `json:"removed,omitempty"`
	Unchanged int           `json:"unchanged"`
	CreatedAt time.Time     `json:"created_at"`
}

func resultKey(r subsidy.Result) string {
	return r.NormalizedCode + "|" + r.PlanGroup + "|" + r.OpeningType.String()
}

func compareRuns(oldRun, newRun *StoredRun) *CompareResult {
	cmp := &CompareResult{OldID: oldRun.ID, NewID: newRun.ID, CreatedAt: time.Now()}

	old := make(map[string]subsidy.Result, len(oldRun.Results))
	for _, r := range oldRun.Results {
		old[resultKey(r)] = r
	}
	seen := make(map[string]bool, len(newRun.Results))
	for _, r := range newRun.Results {
		key := resultKey(r)
		seen[key] = true
		prev, ok := old[key]
		switch {
		case !ok:
			cmp.Added = append(cmp.Added, key)
		case prev.PurchasePrice.Equal(r.PurchasePrice):
			cmp.Unchanged++
		default:
			cmp.Changed = append(cmp.Changed, PriceChange{
				Model:       r.Model,
				PlanGroup:   r.PlanGroup,
				OpeningType: r.OpeningType,
				OldPrice:    prev.PurchasePrice,
				NewPrice:    r.PurchasePrice,
				Delta:       r.PurchasePrice.Sub(prev.PurchasePrice),
			})
		}
	}
	for _, r := range oldRun.Results {
		if key := resultKey(r); !seen[key] {
			cmp.Removed = append(cmp.Removed, key)
		}
	}
	return cmp
}

// prepare fills ID, CreatedAt and ResultCount before a save
func prepare(run *StoredRun) error {
	if run == nil {
		return errs.Input("run is nil")
	}
	if run.Carrier == "" {
		return errs.Input("run has no carrier")
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.ResultCount = len(run.Results)
	return nil
}

// FromReport converts a pipeline report into one run per carrier that
// finished. Failed carriers are skipped.
func FromReport(report *reconcile.Report) []*StoredRun {
	ids := determinism.NewIDGenerator("run")
	var runs []*StoredRun
	for _, c := range report.Carriers {
		if c.State != reconcile.Done {
			continue
		}
		runs = append(runs, &StoredRun{
			ID:          string(ids.Generate(report.RunID, c.Carrier)),
			RunID:       report.RunID,
			Carrier:     c.Carrier,
			Fingerprint: determinism.Fingerprint(c.Fingerprints),
			CreatedAt:   report.FinishedAt.UTC(),
			Metadata: map[string]string{
				"devices":  strconv.Itoa(c.Devices),
				"warnings": strconv.Itoa(len(c.Warnings)),
			},
			Results: c.Results,
		})
	}
	return runs
}

// StoreFactory creates stores by backend type
func StoreFactory(backend Backend, config map[string]string) (Store, error) {
	switch backend {
	case BackendFile:
		path := config["path"]
		if path == "" {
			path = ".subsidy-recon/runs"
		}
		return NewFileStore(path)
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendPostgres:
		dsn := config["dsn"]
		if dsn == "" {
			return nil, errs.Config("postgres backend requires a dsn")
		}
		retries := 3
		if v, ok := config["retries"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, errs.Config(fmt.Sprintf("invalid retries %q", v))
			}
			retries = n
		}
		return OpenPostgres(dsn, retries)
	default:
		return nil, errs.Config(fmt.Sprintf("unsupported backend: %s", backend))
	}
}
