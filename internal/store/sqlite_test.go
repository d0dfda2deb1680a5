package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Provider cache ---

func TestSQLite_Cache_PutAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := CacheRecord{
		Key:       "search:short:abc",
		Provider:  "search",
		Query:     "joe's plumbing austin tx",
		Payload:   []byte(`{"data":[]}`),
		FetchedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, st.PutCacheEntry(ctx, rec))

	got, err := st.GetCacheEntry(ctx, rec.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Payload, got.Payload)
	assert.Equal(t, "search", got.Provider)
	assert.False(t, got.NoMatch)
	assert.WithinDuration(t, rec.ExpiresAt, got.ExpiresAt, time.Millisecond)
}

func TestSQLite_Cache_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetCacheEntry(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Cache_ExpiredRowsStillReturned(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	past := time.Now().Add(-2 * time.Hour)

	require.NoError(t, st.PutCacheEntry(ctx, CacheRecord{
		Key: "k", Provider: "p", Query: "q", NoMatch: true, FetchedAt: past, ExpiresAt: past.Add(time.Hour),
	}))

	got, err := st.GetCacheEntry(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.NoMatch)
	assert.True(t, got.ExpiresAt.Before(time.Now()))
}

func TestSQLite_Cache_UpsertOverwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.PutCacheEntry(ctx, CacheRecord{Key: "k", Provider: "p", Query: "q", Payload: []byte("old"), FetchedAt: now, ExpiresAt: now}))
	require.NoError(t, st.PutCacheEntry(ctx, CacheRecord{Key: "k", Provider: "p", Query: "q", Payload: []byte("new"), FetchedAt: now, ExpiresAt: now.Add(time.Hour)}))

	got, err := st.GetCacheEntry(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got.Payload))
}

func TestSQLite_Cache_Prune(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.PutCacheEntry(ctx, CacheRecord{Key: "old", Provider: "p", Query: "q", FetchedAt: now, ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, st.PutCacheEntry(ctx, CacheRecord{Key: "fresh", Provider: "p", Query: "q", FetchedAt: now, ExpiresAt: now.Add(time.Hour)}))

	n, err := st.PruneCache(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := st.GetCacheEntry(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

// --- Runs ---

func TestSQLite_Runs_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, model.Run{Input: "companies.csv", Segment: "smb", Total: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	summary := &model.RunSummary{Companies: 3, WithContacts: 2, TotalCostUSD: 0.42}
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusComplete, summary))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 2, got.Summary.WithContacts)
	assert.Equal(t, run.CreatedAt, got.CreatedAt)

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLite_Runs_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = st.CompleteRun(ctx, "missing", model.RunStatusFailed, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

// --- Checkpoints ---

func TestSQLite_Checkpoints_SaveLoadDelete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	recs := []CheckpointRecord{
		{RunID: "r1", Index: 2, CompanyKey: "b.com", Result: []byte(`{"company_identifier":"b.com"}`)},
		{RunID: "r1", Index: 0, CompanyKey: "a.com", Result: []byte(`{"company_identifier":"a.com"}`)},
		{RunID: "r2", Index: 0, CompanyKey: "z.com", Result: []byte(`{}`)},
	}
	require.NoError(t, st.SaveCheckpoints(ctx, recs))
	require.NoError(t, st.SaveCheckpoints(ctx, nil))

	got, err := st.LoadCheckpoints(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, "b.com", got[1].CompanyKey)

	require.NoError(t, st.DeleteCheckpoints(ctx, "r1"))
	got, err = st.LoadCheckpoints(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	got, err := st.GetCacheEntry(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, got)
}
