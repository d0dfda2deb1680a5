package cache

import (
	"context"
	"time"

	"github.com/sells-group/contact-cli/internal/store"
)

// StoreBackend persists entries in the SQLite or Postgres provider_cache table.
type StoreBackend struct {
	st store.Store
}

// NewStoreBackend wraps st.
func NewStoreBackend(st store.Store) *StoreBackend {
	return &StoreBackend{st: st}
}

// Get implements Backend.
func (b *StoreBackend) Get(ctx context.Context, key string) (*Entry, error) {
	rec, err := b.st.GetCacheEntry(ctx, key)
	if err != nil || rec == nil {
		return nil, err
	}
	return &Entry{
		Key:       rec.Key,
		Provider:  rec.Provider,
		Query:     rec.Query,
		Payload:   rec.Payload,
		NoMatch:   rec.NoMatch,
		FetchedAt: rec.FetchedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Put implements Backend.
func (b *StoreBackend) Put(ctx context.Context, e Entry) error {
	return b.st.PutCacheEntry(ctx, store.CacheRecord{
		Key:       e.Key,
		Provider:  e.Provider,
		Query:     e.Query,
		Payload:   e.Payload,
		NoMatch:   e.NoMatch,
		FetchedAt: e.FetchedAt,
		ExpiresAt: e.ExpiresAt,
	})
}

// Prune deletes rows that expired at or before before.
func (b *StoreBackend) Prune(ctx context.Context, before time.Time) (int64, error) {
	return b.st.PruneCache(ctx, before)
}
