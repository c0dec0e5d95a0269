package weather

import (
	"context"
	"time"
)

// Query narrows a device data request. Zero values mean "not set".
type Query struct {
	Start time.Time
	End   time.Time
	Limit int
}

// Provider abstracts the remote device telemetry API (Ambient Weather or a mock).
type Provider interface {
	Name() string
	DeviceData(ctx context.Context, deviceID string, q Query) ([]Reading, error)
}

// Store is the Day Partition Store contract every cache backend satisfies.
type Store interface {
	// Load returns the whole cache, creating and persisting an empty one
	// when none exists yet.
	Load(ctx context.Context) (*Cache, error)

	// Save persists the whole cache. Readers never see a partial write.
	Save(ctx context.Context, cache *Cache) error

	// Insert merges readings into their day partitions (first write wins)
	// and persists. It returns how many readings were new.
	Insert(ctx context.Context, readings []Reading) (int, error)
}

// Observer receives cache and fetch events, e.g. for metrics.
type Observer interface {
	ChunkFetched(outcome string, n int)
	ReadingsDropped(n int)
	CacheLookup(hitDays, missingDays int)
	ReadingsCached(n int)
}

// Chunk outcomes reported to Observer.ChunkFetched.
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

type nopObserver struct{}

func (nopObserver) ChunkFetched(string, int) {}
func (nopObserver) ReadingsDropped(int)      {}
func (nopObserver) CacheLookup(int, int)     {}
func (nopObserver) ReadingsCached(int)       {}
