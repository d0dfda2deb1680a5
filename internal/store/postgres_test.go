package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_GetCacheEntry_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT cache_key, provider, query, payload, no_match, fetched_at, expires_at FROM provider_cache`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.GetCacheEntry(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCacheEntry_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"cache_key", "provider", "query", "payload", "no_match", "fetched_at", "expires_at"}).
		AddRow("k1", "places", "acme austin", []byte(`{"places":[]}`), true, now, now.Add(time.Hour))
	mock.ExpectQuery(`FROM provider_cache WHERE cache_key = \$1`).
		WithArgs("k1").
		WillReturnRows(rows)

	rec, err := s.GetCacheEntry(context.Background(), "k1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "places", rec.Provider)
	assert.True(t, rec.NoMatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutCacheEntry_Upserts(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	rec := CacheRecord{Key: "k1", Provider: "search", Query: "q", Payload: []byte("x"), FetchedAt: now, ExpiresAt: now.Add(time.Hour)}

	mock.ExpectExec(`INSERT INTO provider_cache .* ON CONFLICT \(cache_key\) DO UPDATE`).
		WithArgs(rec.Key, rec.Provider, rec.Query, rec.Payload, false, rec.FetchedAt, rec.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.PutCacheEntry(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PruneCache(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	before := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM provider_cache WHERE expires_at <= \$1`).
		WithArgs(before).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.PruneCache(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs("run-1", "in.csv", "smb", 5, "running", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), model.Run{ID: "run-1", Input: "in.csv", Segment: "smb", Total: 5})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1`).
		WithArgs("complete", pgxmock.AnyArg(), pgxmock.AnyArg(), "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "nope", model.RunStatusComplete, &model.RunSummary{Companies: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, input, segment, total, status, summary, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveCheckpoints_Transaction(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	recs := []CheckpointRecord{
		{RunID: "r1", Index: 0, CompanyKey: "a.com", Result: []byte(`{}`)},
		{RunID: "r1", Index: 1, CompanyKey: "b.com", Result: []byte(`{}`)},
	}

	mock.ExpectBegin()
	for _, r := range recs {
		mock.ExpectExec(`INSERT INTO checkpoints`).
			WithArgs(r.RunID, r.Index, r.CompanyKey, r.Result).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, s.SaveCheckpoints(context.Background(), recs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadCheckpoints(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"run_id", "idx", "company_key", "result"}).
		AddRow("r1", 0, "a.com", []byte(`{"a":1}`)).
		AddRow("r1", 3, "d.com", []byte(`{"d":1}`))
	mock.ExpectQuery(`SELECT run_id, idx, company_key, result FROM checkpoints`).
		WithArgs("r1").
		WillReturnRows(rows)

	recs, err := s.LoadCheckpoints(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 3, recs[1].Index)
	assert.NoError(t, mock.ExpectationsWereMet())
}
