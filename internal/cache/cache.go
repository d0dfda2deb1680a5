// Package cache stores raw provider responses keyed by provider, TTL class,
// and normalized query, and coalesces concurrent misses for the same key
// onto a single fetch.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/contact-cli/internal/monitoring"
	"github.com/sells-group/contact-cli/internal/resilience"
)

// TTLClass groups providers by how quickly their data goes stale.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLs maps each class to a duration.
type TTLs struct {
	Short  time.Duration `yaml:"short" mapstructure:"short"`
	Medium time.Duration `yaml:"medium" mapstructure:"medium"`
	Long   time.Duration `yaml:"long" mapstructure:"long"`
}

// DefaultTTLs returns the default expiry for each class.
func DefaultTTLs() TTLs {
	return TTLs{
		Short:  3 * 24 * time.Hour,
		Medium: 30 * 24 * time.Hour,
		Long:   90 * 24 * time.Hour,
	}
}

// For returns the duration for class. Unknown classes use Short.
func (t TTLs) For(class TTLClass) time.Duration {
	def := DefaultTTLs()
	switch class {
	case TTLMedium:
		if t.Medium > 0 {
			return t.Medium
		}
		return def.Medium
	case TTLLong:
		if t.Long > 0 {
			return t.Long
		}
		return def.Long
	default:
		if t.Short > 0 {
			return t.Short
		}
		return def.Short
	}
}

// Entry is one cached provider response. A NoMatch entry has no payload and
// records that the provider confirmed there was nothing to find.
type Entry struct {
	Key       string    `json:"key"`
	Provider  string    `json:"provider"`
	Query     string    `json:"query"`
	Payload   []byte    `json:"payload,omitempty"`
	NoMatch   bool      `json:"no_match,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Backend persists entries. Get returns nil, nil on a miss. Backends return
// expired entries as-is; the Cache decides staleness.
type Backend interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, e Entry) error
}

// FetchFunc performs the underlying provider request. Returning
// resilience.ErrNoMatch records a confirmed absence.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Result is the outcome of GetOrFetch.
type Result struct {
	Key     string
	Payload []byte
	// Fetched is true only for the caller whose fetch hit the network.
	Fetched bool
}

// Stats holds cumulative cache counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Fetches   int64   `json:"fetches"`
	Coalesced int64   `json:"coalesced"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache wraps a Backend with TTL handling and per-key coalescing.
type Cache struct {
	backend Backend
	ttls    TTLs
	group   singleflight.Group
	metrics *monitoring.Metrics
	nowFunc func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	fetches   atomic.Int64
	coalesced atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics records lookups on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.nowFunc = now }
}

// New creates a Cache over backend.
func New(backend Backend, ttls TTLs, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		ttls:    ttls,
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NormalizeQuery lowercases q and collapses whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Key returns the backend key for a provider query.
func Key(provider string, class TTLClass, query string) string {
	h := sha256.Sum256([]byte(NormalizeQuery(query)))
	return fmt.Sprintf("%s|%s|%x", provider, class, h)
}

// GetOrFetch returns the cached payload for (provider, query) when it is
// within its TTL. Otherwise it calls fetch, stores the payload (or a
// NoMatch marker) and returns it. Errors other than ErrNoMatch are never
// stored. Concurrent callers for the same key share one fetch.
func (c *Cache) GetOrFetch(ctx context.Context, provider, query string, class TTLClass, fetch FetchFunc) (Result, error) {
	key := Key(provider, class, query)

	if e := c.lookup(ctx, key); e != nil {
		c.hits.Add(1)
		c.metrics.CacheLookup(provider, "hit")
		return hitResult(e)
	}

	led := false
	// The flight is shared by every caller of this key, so it must not
	// end when the caller that started it goes away. Fetchers bound their
	// own time with per-call timeouts.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		led = true
		// A flight that finished between lookup and DoChan may have stored it.
		if e := c.lookup(flightCtx, key); e != nil {
			return e, nil
		}
		c.fetches.Add(1)
		payload, err := fetch(flightCtx)
		if err != nil && !resilience.IsNoMatch(err) {
			return nil, err
		}

		now := c.nowFunc()
		e := &Entry{
			Key:       key,
			Provider:  provider,
			Query:     NormalizeQuery(query),
			Payload:   payload,
			NoMatch:   err != nil,
			FetchedAt: now,
			ExpiresAt: now.Add(c.ttls.For(class)),
		}
		if e.NoMatch {
			e.Payload = nil
		}
		if perr := c.backend.Put(flightCtx, *e); perr != nil {
			zap.L().Warn("cache: store entry failed",
				zap.String("provider", provider),
				zap.Error(perr),
			)
		}
		return e, nil
	})

	select {
	case <-ctx.Done():
		return Result{Key: key}, ctx.Err()
	case res := <-ch:
		if led {
			c.misses.Add(1)
			c.metrics.CacheLookup(provider, "miss")
		} else {
			c.coalesced.Add(1)
			c.metrics.CacheLookup(provider, "coalesced")
		}
		if res.Err != nil {
			return Result{Key: key}, res.Err
		}
		r, err := hitResult(res.Val.(*Entry))
		r.Fetched = led
		return r, err
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	s := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Fetches:   c.fetches.Load(),
		Coalesced: c.coalesced.Load(),
	}
	if total := s.Hits + s.Misses + s.Coalesced; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// lookup returns a live entry or nil. Backend errors degrade to a miss.
func (c *Cache) lookup(ctx context.Context, key string) *Entry {
	e, err := c.backend.Get(ctx, key)
	if err != nil {
		zap.L().Warn("cache: backend get failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if e == nil || e.Expired(c.nowFunc()) {
		return nil
	}
	return e
}

func hitResult(e *Entry) (Result, error) {
	r := Result{Key: e.Key, Payload: e.Payload}
	if e.NoMatch {
		return r, resilience.ErrNoMatch
	}
	return r, nil
}
