package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 64

type shard struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// MemoryBackend is an in-process Backend split into independently locked
// shards so reads of distinct keys never contend on one lock.
type MemoryBackend struct {
	shards [shardCount]*shard
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	m := &MemoryBackend{}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]Entry)}
	}
	return m
}

func (m *MemoryBackend) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) (*Entry, error) {
	s := m.shardFor(key)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Put implements Backend.
func (m *MemoryBackend) Put(_ context.Context, e Entry) error {
	s := m.shardFor(e.Key)
	s.mu.Lock()
	s.entries[e.Key] = e
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryBackend) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Prune removes entries that expired at or before before.
func (m *MemoryBackend) Prune(_ context.Context, before time.Time) (int64, error) {
	var removed int64
	for _, s := range m.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			if !e.ExpiresAt.After(before) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}
