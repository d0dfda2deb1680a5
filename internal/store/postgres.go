package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/internal/db"
	"github.com/sells-group/contact-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS provider_cache (
	cache_key  TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	query      TEXT NOT NULL,
	payload    BYTEA,
	no_match   BOOLEAN NOT NULL DEFAULT false,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	input      TEXT NOT NULL,
	segment    TEXT NOT NULL,
	total      INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS checkpoints (
	run_id      TEXT NOT NULL,
	idx         INTEGER NOT NULL,
	company_key TEXT NOT NULL,
	result      JSONB NOT NULL,
	PRIMARY KEY (run_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_provider_cache_provider ON provider_cache(provider);
CREATE INDEX IF NOT EXISTS idx_provider_cache_expires_at ON provider_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetCacheEntry(ctx context.Context, key string) (*CacheRecord, error) {
	var rec CacheRecord
	err := s.pool.QueryRow(ctx,
		`SELECT cache_key, provider, query, payload, no_match, fetched_at, expires_at FROM provider_cache WHERE cache_key = $1`,
		key,
	).Scan(&rec.Key, &rec.Provider, &rec.Query, &rec.Payload, &rec.NoMatch, &rec.FetchedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get cache entry %s", key)
	}
	return &rec, nil
}

func (s *PostgresStore) PutCacheEntry(ctx context.Context, rec CacheRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO provider_cache (cache_key, provider, query, payload, no_match, fetched_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (cache_key) DO UPDATE SET payload = $4, no_match = $5, fetched_at = $6, expires_at = $7`,
		rec.Key, rec.Provider, rec.Query, rec.Payload, rec.NoMatch, rec.FetchedAt, rec.ExpiresAt,
	)
	return eris.Wrapf(err, "postgres: put cache entry %s", rec.Key)
}

func (s *PostgresStore) PruneCache(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM provider_cache WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune cache")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	run.Status = model.RunStatusRunning
	run.CreatedAt, run.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, input, segment, total, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Input, run.Segment, run.Total, string(run.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	var summaryJSON []byte
	if summary != nil {
		var err error
		if summaryJSON, err = json.Marshal(summary); err != nil {
			return eris.Wrap(err, "postgres: marshal summary")
		}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, updated_at = $3 WHERE id = $4`,
		string(status), summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, input, segment, total, status, summary, created_at, updated_at FROM runs WHERE id = $1`, runID,
	)
	r, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, input, segment, total, status, summary, created_at, updated_at FROM runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) SaveCheckpoints(ctx context.Context, recs []CheckpointRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin checkpoint tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range recs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO checkpoints (run_id, idx, company_key, result) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (run_id, idx) DO UPDATE SET company_key = $3, result = $4`,
			r.RunID, r.Index, r.CompanyKey, r.Result,
		); err != nil {
			return eris.Wrapf(err, "postgres: save checkpoint %s/%d", r.RunID, r.Index)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit checkpoints")
}

func (s *PostgresStore) LoadCheckpoints(ctx context.Context, runID string) ([]CheckpointRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, idx, company_key, result FROM checkpoints WHERE run_id = $1 ORDER BY idx`, runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load checkpoints")
	}
	defer rows.Close()

	var recs []CheckpointRecord
	for rows.Next() {
		var r CheckpointRecord
		if err := rows.Scan(&r.RunID, &r.Index, &r.CompanyKey, &r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: scan checkpoint")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: iterate checkpoints")
}

func (s *PostgresStore) DeleteCheckpoints(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE run_id = $1`, runID)
	return eris.Wrap(err, "postgres: delete checkpoints")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var (
		r       model.Run
		status  string
		summary []byte
	)
	if err := row.Scan(&r.ID, &r.Input, &r.Segment, &r.Total, &status, &summary, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if len(summary) > 0 {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summary, r.Summary); err != nil {
			return nil, eris.Wrap(err, "unmarshal summary")
		}
	}
	return &r, nil
}
