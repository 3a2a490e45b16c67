package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"

	"subsidy-recon/core/gateway"
	errs "subsidy-recon/internal/errors"
)

const schema = `CREATE TABLE IF NOT EXISTS pricing_runs (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	carrier TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	result_count INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	results JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS pricing_runs_carrier_created ON pricing_runs (carrier, created_at DESC);`

const runColumns = "id, run_id, carrier, fingerprint, result_count, created_at, metadata"

const (
	insertRun = `INSERT INTO pricing_runs (id, run_id, carrier, fingerprint, result_count, created_at, metadata, results)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET fingerprint = EXCLUDED.fingerprint, result_count = EXCLUDED.result_count,
		metadata = EXCLUDED.metadata, results = EXCLUDED.results`
	selectRun    = "SELECT " + runColumns + ", results FROM pricing_runs WHERE id = $1"
	selectLatest = "SELECT " + runColumns + ", results FROM pricing_runs WHERE carrier = $1 ORDER BY created_at DESC, id ASC LIMIT 1"
	deleteRun    = "DELETE FROM pricing_runs WHERE id = $1"
)

// PostgresStore stores runs in PostgreSQL. Results are kept as a JSONB
// document per run.
type PostgresStore struct {
	db      *sql.DB
	retries int
}

// NewPostgresStore wraps an open database handle
func NewPostgresStore(db *sql.DB, retries int) *PostgresStore {
	if retries < 1 {
		retries = 1
	}
	return &PostgresStore{db: db, retries: retries}
}

// OpenPostgres connects with the lib/pq driver and ensures the schema exists
func OpenPostgres(dsn string, retries int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.TypeConfig, "failed to open postgres", err)
	}
	s := NewPostgresStore(db, retries)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables if they do not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := gateway.RetryImmediate(ctx, s.retries, func() (sql.Result, error) {
		res, err := s.db.ExecContext(ctx, schema)
		return res, classify("failed to migrate schema", err)
	})
	return err
}

func (s *PostgresStore) Save(ctx context.Context, run *StoredRun) error {
	if err := prepare(run); err != nil {
		return err
	}
	metadata, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	results, err := json.Marshal(run.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	_, err = gateway.RetryImmediate(ctx, s.retries, func() (sql.Result, error) {
		res, err := s.db.ExecContext(ctx, insertRun,
			run.ID, run.RunID, run.Carrier, run.Fingerprint, run.ResultCount, run.CreatedAt,
			string(metadata), string(results))
		return res, classify("failed to save run", err)
	})
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner, withResults bool) (*StoredRun, error) {
	var (
		run      StoredRun
		metadata []byte
		results  []byte
	)
	dest := []any{&run.ID, &run.RunID, &run.Carrier, &run.Fingerprint, &run.ResultCount, &run.CreatedAt, &metadata}
	if withResults {
		dest = append(dest, &results)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &run.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &run.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
	}
	return &run, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*StoredRun, error) {
	return gateway.RetryImmediate(ctx, s.retries, func() (*StoredRun, error) {
		run, err := scanRun(s.db.QueryRowContext(ctx, selectRun, id), true)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("run", id)
		}
		return run, classify("failed to get run", err)
	})
}

// listQuery builds the filtered listing statement and its arguments
func listQuery(filter *ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter != nil {
		if filter.Carrier != "" {
			add("carrier = $%d", filter.Carrier)
		}
		if !filter.Since.IsZero() {
			add("created_at >= $%d", filter.Since)
		}
		if !filter.Until.IsZero() {
			add("created_at <= $%d", filter.Until)
		}
	}

	query := "SELECT " + runColumns + " FROM pricing_runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter != nil && filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter != nil && filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func (s *PostgresStore) List(ctx context.Context, filter *ListFilter) ([]*StoredRun, error) {
	query, args := listQuery(filter)
	return gateway.RetryImmediate(ctx, s.retries, func() ([]*StoredRun, error) {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, classify("failed to list runs", err)
		}
		defer rows.Close()

		var runs []*StoredRun
		for rows.Next() {
			run, err := scanRun(rows, false)
			if err != nil {
				return nil, fmt.Errorf("failed to scan run: %w", err)
			}
			runs = append(runs, run)
		}
		return runs, classify("failed to list runs", rows.Err())
	})
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := gateway.RetryImmediate(ctx, s.retries, func() (struct{}, error) {
		res, err := s.db.ExecContext(ctx, deleteRun, id)
		if err != nil {
			return struct{}{}, classify("failed to delete run", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to delete run: %w", err)
		}
		if n == 0 {
			return struct{}{}, errs.NotFound("run", id)
		}
		return struct{}{}, nil
	})
	return err
}

func (s *PostgresStore) GetLatest(ctx context.Context, carrier string) (*StoredRun, error) {
	return gateway.RetryImmediate(ctx, s.retries, func() (*StoredRun, error) {
		run, err := scanRun(s.db.QueryRowContext(ctx, selectLatest, carrier), true)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("run for carrier", carrier)
		}
		return run, classify("failed to get latest run", err)
	})
}

func (s *PostgresStore) Compare(ctx context.Context, oldID, newID string) (*CompareResult, error) {
	oldRun, err := s.Get(ctx, oldID)
	if err != nil {
		return nil, fmt.Errorf("failed to get old run: %w", err)
	}
	newRun, err := s.Get(ctx, newID)
	if err != nil {
		return nil, fmt.Errorf("failed to get new run: %w", err)
	}
	return compareRuns(oldRun, newRun), nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// classify tags connection-level failures as transient so they are retried.
// Everything else passes through wrapped.
func classify(message string, err error) error {
	if err == nil {
		return nil
	}
	var typed *errs.Error
	if errors.As(err, &typed) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return errs.Transient(message, err)
		}
		return fmt.Errorf("%s: %w", message, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return errs.Transient(message, err)
	}
	return fmt.Errorf("%s: %w", message, err)
}
