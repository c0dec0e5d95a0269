package store

import (
	"context"
	"sync"
	"time"

	"github.com/i474232898/ambient-history-cache/internal/weather"
)

// MemoryStore is a concurrency-safe in-memory day partition store. It keeps
// a private copy of the cache so callers cannot mutate stored state.
type MemoryStore struct {
	mu    sync.Mutex
	cache *weather.Cache
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Load returns a copy of the cache, initialising it on first use.
func (s *MemoryStore) Load(ctx context.Context) (*weather.Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache == nil {
		s.cache = weather.NewCache(s.now())
	}
	return cloneCache(s.cache), nil
}

// Save replaces the stored cache.
func (s *MemoryStore) Save(ctx context.Context, cache *weather.Cache) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = cloneCache(cache)
	return nil
}

// Insert merges readings into the stored cache.
func (s *MemoryStore) Insert(ctx context.Context, readings []weather.Reading) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache == nil {
		s.cache = weather.NewCache(s.now())
	}
	return s.cache.Merge(cloneReadings(readings), s.now()), nil
}

func cloneCache(c *weather.Cache) *weather.Cache {
	out := &weather.Cache{
		Readings:    make(map[string][]weather.Reading, len(c.Readings)),
		LastUpdated: c.LastUpdated,
	}
	for day, rs := range c.Readings {
		out.Readings[day] = cloneReadings(rs)
	}
	return out
}

func cloneReadings(rs []weather.Reading) []weather.Reading {
	out := make([]weather.Reading, len(rs))
	for i, r := range rs {
		fields := make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			fields[k] = v
		}
		out[i] = weather.Reading{Date: r.Date, Fields: fields}
	}
	return out
}
