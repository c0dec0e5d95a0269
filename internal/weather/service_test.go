package weather_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/ambient-history-cache/internal/store"
	"github.com/i474232898/ambient-history-cache/internal/weather"
)

var fixedNow = ts("2024-06-15T12:00:00Z")

func newTestService(t *testing.T, st weather.Store, p weather.Provider, opts ...weather.Option) (*weather.Service, *sleepRecorder) {
	t.Helper()
	opts = append([]weather.Option{
		weather.WithClock(func() time.Time { return fixedNow }),
		weather.WithLocation(time.UTC),
	}, opts...)
	svc := weather.NewService(st, p, "AA:BB", weather.FetcherConfig{}, opts...)
	rec := &sleepRecorder{}
	svc.Fetcher().SetSleep(rec.Sleep)
	return svc, rec
}

func assertSortedUnique(t *testing.T, rs []weather.Reading) {
	t.Helper()
	seen := make(map[int64]bool)
	for i, r := range rs {
		if i > 0 {
			require.False(t, r.Date.Before(rs[i-1].Date), "readings not sorted at %d", i)
		}
		require.False(t, seen[r.Date.UnixNano()], "duplicate timestamp %s", r.Date)
		seen[r.Date.UnixNano()] = true
	}
}

func TestService_GetRange_EmptyCacheTwoDays(t *testing.T) {
	st := store.NewMemoryStore()
	p := &scriptedProvider{}
	svc, _ := newTestService(t, st, p)
	ctx := context.Background()

	got, err := svc.GetRange(ctx, ts("2024-01-01T00:00:00Z"), ts("2024-01-02T18:00:00Z"))
	require.NoError(t, err)
	assert.Len(t, got, 48)
	assertSortedUnique(t, got)

	calls := p.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, ts("2024-01-01T00:00:00Z"), calls[0].Start)
	assert.Equal(t, ts("2024-01-02T23:59:59Z").Add(999*time.Millisecond), calls[1].End)
	assert.Equal(t, weather.DefaultChunkLimit, calls[0].Limit)

	cache, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, cache.Days())
}

func TestService_GetRange_FetchesOnlyMissingDays(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	_, err := st.Insert(ctx, hourly(ts("2024-01-01T00:00:00Z"), ts("2024-01-01T23:00:00Z")))
	require.NoError(t, err)

	p := &scriptedProvider{}
	svc, _ := newTestService(t, st, p)

	got, err := svc.GetRange(ctx, ts("2024-01-01T00:00:00Z"), ts("2024-01-03T00:00:00Z"))
	require.NoError(t, err)
	assert.Len(t, got, 72)
	assertSortedUnique(t, got)

	calls := p.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, ts("2024-01-02T00:00:00Z"), calls[0].Start)
	assert.Equal(t, ts("2024-01-03T23:59:59Z").Add(999*time.Millisecond), calls[1].End)
}

func TestService_GetRange_SecondCallHitsCache(t *testing.T) {
	st := store.NewMemoryStore()
	p := &scriptedProvider{}
	svc, _ := newTestService(t, st, p)
	ctx := context.Background()

	first, err := svc.GetRange(ctx, ts("2024-01-01T00:00:00Z"), ts("2024-01-03T00:00:00Z"))
	require.NoError(t, err)
	n := len(p.Calls())

	second, err := svc.GetRange(ctx, ts("2024-01-01T00:00:00Z"), ts("2024-01-03T00:00:00Z"))
	require.NoError(t, err)
	assert.Len(t, p.Calls(), n)
	assert.Equal(t, len(first), len(second))
}

func TestService_GetRange_RateLimitedChunkStaysMissing(t *testing.T) {
	st := store.NewMemoryStore()
	p := &scriptedProvider{respond: func(call int, q weather.Query) ([]weather.Reading, error) {
		if call == 2 {
			return nil, errors.New("429: rate limit")
		}
		return hourly(q.Start, q.End), nil
	}}
	svc, rec := newTestService(t, st, p)
	ctx := context.Background()

	got, err := svc.GetRange(ctx, ts("2024-01-01T00:00:00Z"), ts("2024-01-03T12:00:00Z"))
	require.NoError(t, err)
	assert.Len(t, got, 48)
	assert.Contains(t, rec.Sleeps(), weather.DefaultRateLimitCooldown)

	cache, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-03"}, cache.Days())

	// The skipped day is retried on the next call covering it.
	got, err = svc.GetRange(ctx, ts("2024-01-01T00:00:00Z"), ts("2024-01-03T12:00:00Z"))
	require.NoError(t, err)
	assert.Len(t, got, 72)
	calls := p.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, ts("2024-01-02T00:00:00Z"), calls[3].Start)
}

func TestService_GetRange_DeduplicatesProviderOverlap(t *testing.T) {
	st := store.NewMemoryStore()
	p := &scriptedProvider{respond: func(call int, q weather.Query) ([]weather.Reading, error) {
		rs := hourly(q.Start, q.End)
		return append(rs, rs[0], rs[1]), nil
	}}
	svc, _ := newTestService(t, st, p)

	got, err := svc.GetRange(context.Background(), ts("2024-01-01T00:00:00Z"), ts("2024-01-01T12:00:00Z"))
	require.NoError(t, err)
	assert.Len(t, got, 24)
	assertSortedUnique(t, got)
}

func TestService_GetRange_RefreshesCurrentDay(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	_, err := st.Insert(ctx, hourly(ts("2024-06-15T00:00:00Z"), ts("2024-06-15T05:00:00Z")))
	require.NoError(t, err)

	p := &scriptedProvider{}
	svc, _ := newTestService(t, st, p, weather.WithCurrentDayRefresh(true))

	got, err := svc.GetRange(ctx, ts("2024-06-15T00:00:00Z"), fixedNow)
	require.NoError(t, err)
	assert.Len(t, got, 24)
	assertSortedUnique(t, got)
	require.Len(t, p.Calls(), 1)

	cache, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, cache.Readings["2024-06-15"], 24)

	// Without the refresh option a cached current day is left alone.
	plainProvider := &scriptedProvider{}
	plain, _ := newTestService(t, st, plainProvider)
	_, err = plain.GetRange(ctx, ts("2024-06-15T00:00:00Z"), fixedNow)
	require.NoError(t, err)
	assert.Empty(t, plainProvider.Calls())
}

func TestService_GetRange_InvertedInterval(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemoryStore(), &scriptedProvider{})
	_, err := svc.GetRange(context.Background(), ts("2024-01-02T00:00:00Z"), ts("2024-01-01T00:00:00Z"))
	assert.ErrorIs(t, err, weather.ErrInvalidArgument)
}

type brokenStore struct {
	weather.Store
	loadErr   error
	insertErr error
}

func (b brokenStore) Load(ctx context.Context) (*weather.Cache, error) {
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return b.Store.Load(ctx)
}

func (b brokenStore) Insert(ctx context.Context, rs []weather.Reading) (int, error) {
	if b.insertErr != nil {
		return 0, b.insertErr
	}
	return b.Store.Insert(ctx, rs)
}

func TestService_GetRange_StorageErrorsSurface(t *testing.T) {
	diskFull := &weather.StorageError{Op: "write", Path: "cache.json", Err: errors.New("no space left on device")}

	svc, _ := newTestService(t, brokenStore{Store: store.NewMemoryStore(), loadErr: diskFull}, &scriptedProvider{})
	_, err := svc.GetRange(context.Background(), ts("2024-01-01T00:00:00Z"), ts("2024-01-01T01:00:00Z"))
	assert.True(t, weather.IsStorageError(err))

	svc, _ = newTestService(t, brokenStore{Store: store.NewMemoryStore(), insertErr: diskFull}, &scriptedProvider{})
	_, err = svc.GetRange(context.Background(), ts("2024-01-01T00:00:00Z"), ts("2024-01-01T01:00:00Z"))
	assert.True(t, weather.IsStorageError(err))
}

func TestService_GetRange_WithFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temperature_cache.json")
	p := &scriptedProvider{}
	svc, _ := newTestService(t, store.NewFileStore(path), p)
	ctx := context.Background()

	got, err := svc.GetRange(ctx, ts("2024-01-01T00:00:00Z"), ts("2024-01-02T00:00:00Z"))
	require.NoError(t, err)
	assert.Len(t, got, 48)

	// A fresh service over the same file needs no remote calls.
	p2 := &scriptedProvider{}
	svc2, _ := newTestService(t, store.NewFileStore(path), p2)
	again, err := svc2.GetRange(ctx, ts("2024-01-01T00:00:00Z"), ts("2024-01-02T00:00:00Z"))
	require.NoError(t, err)
	assert.Empty(t, p2.Calls())
	assert.Len(t, again, 48)
}

func TestService_Observer(t *testing.T) {
	obs := newCountingObserver()
	st := store.NewMemoryStore()
	ctx := context.Background()
	_, err := st.Insert(ctx, []weather.Reading{at(ts("2024-01-01T10:00:00Z"), 70)})
	require.NoError(t, err)

	svc, _ := newTestService(t, st, &scriptedProvider{}, weather.WithObserver(obs))
	_, err = svc.GetRange(ctx, ts("2024-01-01T00:00:00Z"), ts("2024-01-03T00:00:00Z"))
	require.NoError(t, err)

	assert.Equal(t, 1, obs.hitDays)
	assert.Equal(t, 2, obs.missingDays)
	assert.Equal(t, 48, obs.cached)
	assert.Equal(t, 2, obs.outcomes[weather.OutcomeOK])
}

func TestService_Current(t *testing.T) {
	p := &scriptedProvider{respond: func(call int, q weather.Query) ([]weather.Reading, error) {
		assert.Equal(t, 1, q.Limit)
		return []weather.Reading{at(ts("2024-01-01T10:00:00Z"), 71)}, nil
	}}
	svc, _ := newTestService(t, store.NewMemoryStore(), p)

	r, err := svc.Current(context.Background())
	require.NoError(t, err)
	v, ok := r.TempF(1)
	require.True(t, ok)
	assert.Equal(t, 71.0, v)

	empty := &scriptedProvider{respond: func(int, weather.Query) ([]weather.Reading, error) { return nil, nil }}
	svc, _ = newTestService(t, store.NewMemoryStore(), empty)
	_, err = svc.Current(context.Background())
	assert.ErrorIs(t, err, weather.ErrNoData)
}
