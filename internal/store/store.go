// Package store persists provider cache entries, batch runs, and resume
// checkpoints in SQLite or Postgres.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/internal/model"
)

// CacheRecord is one cached raw provider response.
type CacheRecord struct {
	Key       string    `json:"key"`
	Provider  string    `json:"provider"`
	Query     string    `json:"query"`
	Payload   []byte    `json:"payload"`
	NoMatch   bool      `json:"no_match"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = eris.New("run not found")

// CheckpointRecord is the saved output of one completed company in a run.
type CheckpointRecord struct {
	RunID      string `json:"run_id"`
	Index      int    `json:"index"`
	CompanyKey string `json:"company_key"`
	Result     []byte `json:"result"`
}

// Store defines the persistence interface for the contact pipeline.
type Store interface {
	// Provider cache. Expired rows are returned as-is; staleness is decided
	// by the caller and rows are only removed by PruneCache.
	GetCacheEntry(ctx context.Context, key string) (*CacheRecord, error)
	PutCacheEntry(ctx context.Context, rec CacheRecord) error
	PruneCache(ctx context.Context, before time.Time) (int64, error)

	// Runs
	CreateRun(ctx context.Context, run model.Run) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Checkpoints
	SaveCheckpoints(ctx context.Context, recs []CheckpointRecord) error
	LoadCheckpoints(ctx context.Context, runID string) ([]CheckpointRecord, error)
	DeleteCheckpoints(ctx context.Context, runID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a store for driver ("sqlite" or "postgres") and runs its
// migrations.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		st  Store
		err error
	)
	switch driver {
	case "sqlite":
		st, err = NewSQLite(dsn)
	case "postgres":
		st, err = NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "store: migrate")
	}
	return st, nil
}
