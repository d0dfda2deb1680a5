package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/contact-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Times are stored as unix milliseconds so expiry comparisons stay numeric.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS provider_cache (
	cache_key  TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	query      TEXT NOT NULL,
	payload    BLOB,
	no_match   INTEGER NOT NULL DEFAULT 0,
	fetched_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	input      TEXT NOT NULL,
	segment    TEXT NOT NULL,
	total      INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	run_id      TEXT NOT NULL,
	idx         INTEGER NOT NULL,
	company_key TEXT NOT NULL,
	result      BLOB NOT NULL,
	PRIMARY KEY (run_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_provider_cache_provider ON provider_cache(provider);
CREATE INDEX IF NOT EXISTS idx_provider_cache_expires_at ON provider_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetCacheEntry(ctx context.Context, key string) (*CacheRecord, error) {
	var (
		rec                  CacheRecord
		noMatch              int
		fetchedAt, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT cache_key, provider, query, payload, no_match, fetched_at, expires_at
		 FROM provider_cache WHERE cache_key = ?`,
		key,
	).Scan(&rec.Key, &rec.Provider, &rec.Query, &rec.Payload, &noMatch, &fetchedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cache entry %s", key)
	}
	rec.NoMatch = noMatch != 0
	rec.FetchedAt = time.UnixMilli(fetchedAt).UTC()
	rec.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &rec, nil
}

func (s *SQLiteStore) PutCacheEntry(ctx context.Context, rec CacheRecord) error {
	noMatch := 0
	if rec.NoMatch {
		noMatch = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_cache (cache_key, provider, query, payload, no_match, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (cache_key) DO UPDATE SET
		   payload = excluded.payload, no_match = excluded.no_match,
		   fetched_at = excluded.fetched_at, expires_at = excluded.expires_at`,
		rec.Key, rec.Provider, rec.Query, rec.Payload, noMatch,
		rec.FetchedAt.UnixMilli(), rec.ExpiresAt.UnixMilli(),
	)
	return eris.Wrapf(err, "sqlite: put cache entry %s", rec.Key)
}

func (s *SQLiteStore) PruneCache(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM provider_cache WHERE expires_at <= ?`, before.UnixMilli(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune cache")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	run.Status = model.RunStatusRunning
	run.CreatedAt, run.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input, segment, total, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Input, run.Segment, run.Total, string(run.Status), now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	var summaryJSON []byte
	if summary != nil {
		var err error
		if summaryJSON, err = json.Marshal(summary); err != nil {
			return eris.Wrap(err, "sqlite: marshal summary")
		}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, updated_at = ? WHERE id = ?`,
		string(status), nullString(summaryJSON), time.Now().UTC().UnixMilli(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, input, segment, total, status, summary, created_at, updated_at FROM runs WHERE id = ?`, runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input, segment, total, status, summary, created_at, updated_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) SaveCheckpoints(ctx context.Context, recs []CheckpointRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin checkpoint tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range recs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO checkpoints (run_id, idx, company_key, result) VALUES (?, ?, ?, ?)
			 ON CONFLICT (run_id, idx) DO UPDATE SET company_key = excluded.company_key, result = excluded.result`,
			r.RunID, r.Index, r.CompanyKey, r.Result,
		); err != nil {
			return eris.Wrapf(err, "sqlite: save checkpoint %s/%d", r.RunID, r.Index)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit checkpoints")
}

func (s *SQLiteStore) LoadCheckpoints(ctx context.Context, runID string) ([]CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, idx, company_key, result FROM checkpoints WHERE run_id = ? ORDER BY idx`, runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load checkpoints")
	}
	defer rows.Close() //nolint:errcheck

	var recs []CheckpointRecord
	for rows.Next() {
		var r CheckpointRecord
		if err := rows.Scan(&r.RunID, &r.Index, &r.CompanyKey, &r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan checkpoint")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: iterate checkpoints")
}

func (s *SQLiteStore) DeleteCheckpoints(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_id = ?`, runID)
	return eris.Wrap(err, "sqlite: delete checkpoints")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullString(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r                    model.Run
		status               string
		summary              sql.NullString
		createdAt, updatedAt int64
	)
	err := row.Scan(&r.ID, &r.Input, &r.Segment, &r.Total, &status, &summary, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = model.RunStatus(status)
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	r.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if summary.Valid {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summary.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}
