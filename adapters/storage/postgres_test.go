package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsidy-recon/core/opening"
	errs "subsidy-recon/internal/errors"
)

func newMockStore(t *testing.T, retries int) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, retries), mock
}

var listColumns = []string{"id", "run_id", "carrier", "fingerprint", "result_count", "created_at", "metadata"}

func TestPostgresSave(t *testing.T) {
	store, mock := newMockStore(t, 3)
	r := run("SK", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), result("sms928n", opening.PortIn, 610000))
	r.ID = "run-a"

	mock.ExpectExec(regexp.QuoteMeta(insertRun)).
		WithArgs("run-a", "r", "SK", "", 1, r.CreatedAt, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Save(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveRetriesConnectionErrors(t *testing.T) {
	store, mock := newMockStore(t, 3)
	r := run("SK", time.Now().UTC())

	mock.ExpectExec(regexp.QuoteMeta(insertRun)).WillReturnError(&pq.Error{Code: "08006"})
	mock.ExpectExec(regexp.QuoteMeta(insertRun)).WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Save(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveDoesNotRetryConstraintErrors(t *testing.T) {
	store, mock := newMockStore(t, 3)

	mock.ExpectExec(regexp.QuoteMeta(insertRun)).WillReturnError(&pq.Error{Code: "23502"})

	err := store.Save(context.Background(), run("SK", time.Now().UTC()))
	require.Error(t, err)
	assert.False(t, errs.IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet(t *testing.T) {
	store, mock := newMockStore(t, 1)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(append(listColumns, "results")).
		AddRow("run-a", "r", "SK", "fp", 1, created, []byte(`{"devices":"1"}`),
			[]byte(`[{"carrier":"SK","model":"SM-S928N","normalized_code":"sms928n","plan_group":"high","opening_type":"PortIn","purchase_price":"610000"}]`))
	mock.ExpectQuery(regexp.QuoteMeta(selectRun)).WithArgs("run-a").WillReturnRows(rows)

	got, err := store.Get(context.Background(), "run-a")
	require.NoError(t, err)
	assert.Equal(t, "SK", got.Carrier)
	assert.Equal(t, "1", got.Metadata["devices"])
	require.Len(t, got.Results, 1)
	assert.Equal(t, opening.PortIn, got.Results[0].OpeningType)
	assert.Equal(t, "610000", got.Results[0].PurchasePrice.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	store, mock := newMockStore(t, 3)

	mock.ExpectQuery(regexp.QuoteMeta(selectRun)).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(append(listColumns, "results")))

	_, err := store.Get(context.Background(), "missing")
	assert.True(t, errs.IsType(err, errs.TypeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresList(t *testing.T) {
	store, mock := newMockStore(t, 1)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	filter := &ListFilter{Carrier: "SK", Since: since, Limit: 10, Offset: 5}

	query, args := listQuery(filter)
	assert.Equal(t, "SELECT "+runColumns+" FROM pricing_runs WHERE carrier = $1 AND created_at >= $2 ORDER BY created_at DESC, id ASC LIMIT $3 OFFSET $4", query)
	assert.Equal(t, []any{"SK", since, 10, 5}, args)

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("SK", since, 10, 5).
		WillReturnRows(sqlmock.NewRows(listColumns).
			AddRow("run-b", "r", "SK", "fp", 3, since.Add(time.Hour), []byte(`{}`)).
			AddRow("run-a", "r", "SK", "fp", 2, since, []byte(`{}`)))

	runs, err := store.List(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].ID)
	assert.Equal(t, 3, runs[0].ResultCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListQueryWithoutFilter(t *testing.T) {
	query, args := listQuery(nil)
	assert.Equal(t, "SELECT "+runColumns+" FROM pricing_runs ORDER BY created_at DESC, id ASC", query)
	assert.Empty(t, args)
}

func TestPostgresDelete(t *testing.T) {
	store, mock := newMockStore(t, 1)

	mock.ExpectExec(regexp.QuoteMeta(deleteRun)).WithArgs("run-a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(deleteRun)).WithArgs("run-a").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete(context.Background(), "run-a"))
	assert.True(t, errs.IsType(store.Delete(context.Background(), "run-a"), errs.TypeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetLatest(t *testing.T) {
	store, mock := newMockStore(t, 1)

	mock.ExpectQuery(regexp.QuoteMeta(selectLatest)).WithArgs("KT").
		WillReturnRows(sqlmock.NewRows(append(listColumns, "results")))

	_, err := store.GetLatest(context.Background(), "KT")
	assert.True(t, errs.IsType(err, errs.TypeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrate(t *testing.T) {
	store, mock := newMockStore(t, 1)

	mock.ExpectExec(regexp.QuoteMeta(schema)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("x", nil))
	assert.True(t, errs.IsTransient(classify("x", &pq.Error{Code: "57P01"})))
	assert.True(t, errs.IsTransient(classify("x", &pq.Error{Code: "40001"})))
	assert.False(t, errs.IsTransient(classify("x", &pq.Error{Code: "42P01"})))

	nf := errs.NotFound("run", "a")
	assert.Same(t, nf, classify("x", nf))
}
