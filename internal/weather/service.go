package weather

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service is the cache orchestrator: it answers range queries from the day
// partition store and fetches only the days that are missing.
//
// Every call loads and rewrites the whole cache, so the cost of a mutation
// grows with the total number of cached readings. Calls are serialised by
// an internal mutex; separate processes sharing one cache file are not
// supported.
type Service struct {
	mu sync.Mutex

	store    Store
	provider Provider
	fetcher  *Fetcher
	deviceID string
	observer Observer

	now          func() time.Time
	loc          *time.Location
	refreshToday bool
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithObserver reports cache and fetch events to o.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
			s.fetcher.SetObserver(o)
		}
	}
}

// WithCurrentDayRefresh makes the day containing "now" count as missing on
// every call, so a partially recorded day keeps filling in.
func WithCurrentDayRefresh(enabled bool) Option {
	return func(s *Service) { s.refreshToday = enabled }
}

// WithLocation sets the time zone used for time-of-day pattern matching.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewService creates a new Service.
func NewService(store Store, provider Provider, deviceID string, cfg FetcherConfig, opts ...Option) *Service {
	s := &Service{
		store:    store,
		provider: provider,
		fetcher:  NewFetcher(provider, deviceID, cfg),
		deviceID: deviceID,
		observer: nopObserver{},
		now:      time.Now,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetcher exposes the chunked fetcher, mainly so callers can tune pacing.
func (s *Service) Fetcher() *Fetcher {
	return s.fetcher
}

// GetRange returns every reading of the days spanned by [start, end],
// ascending by timestamp. Days absent from the cache are fetched chunk by
// chunk and persisted before returning. Remote failures only shrink the
// result; storage failures abort the call.
func (s *Service) GetRange(ctx context.Context, start, end time.Time) ([]Reading, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: start %s after end %s", ErrInvalidArgument, start, end)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logger := log.With().Str("op_id", uuid.NewString()).Logger()

	cache, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	startKey, endKey := DayKey(start), DayKey(end)
	var (
		cachedData []Reading
		cachedDays = make(DaySet)
	)
	for _, day := range cache.Days() {
		if day < startKey || day > endKey {
			continue
		}
		cachedDays[day] = struct{}{}
		cachedData = append(cachedData, cache.Readings[day]...)
	}
	if s.refreshToday {
		delete(cachedDays, DayKey(s.now()))
	}

	missing, err := FindMissingRanges(cachedDays, startKey, endKey)
	if err != nil {
		return nil, err
	}
	missingDays := 0
	for _, r := range missing {
		missingDays += rangeDays(r)
	}
	s.observer.CacheLookup(len(cachedDays), missingDays)
	logger.Info().
		Str("start", startKey).
		Str("end", endKey).
		Int("cached_readings", len(cachedData)).
		Int("missing_ranges", len(missing)).
		Msg("cache lookup")

	var newData []Reading
	for _, r := range missing {
		data, ferr := s.fetcher.Fetch(ctx, r)
		if len(data) > 0 {
			added, err := s.store.Insert(ctx, data)
			if err != nil {
				return nil, err
			}
			s.observer.ReadingsCached(added)
			logger.Info().Stringer("range", r).Int("fetched", len(data)).Int("cached", added).Msg("cached new readings")
			newData = append(newData, data...)
		}
		if ferr != nil {
			return nil, ferr
		}
	}

	all := make([]Reading, 0, len(cachedData)+len(newData))
	all = append(all, cachedData...)
	all = append(all, newData...)
	SortReadings(all)
	all = dedupe(all)

	logger.Info().Int("total", len(all)).Msg("range ready")
	return all, nil
}

// Current asks the provider for the most recent record, bypassing the cache.
func (s *Service) Current(ctx context.Context) (Reading, error) {
	data, err := s.provider.DeviceData(ctx, s.deviceID, Query{Limit: 1})
	if err != nil {
		return Reading{}, err
	}
	for _, r := range data {
		if r.Validate() == nil {
			return r, nil
		}
	}
	return Reading{}, ErrNoData
}

// DailyPattern returns, for the last months×30 days, the earliest reading of
// each calendar day that lies within PatternTolerance of hour:minute.
func (s *Service) DailyPattern(ctx context.Context, months, hour, minute int) ([]Reading, error) {
	if months < 1 {
		return nil, fmt.Errorf("%w: months must be positive, got %d", ErrInvalidArgument, months)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("%w: time %02d:%02d out of range", ErrInvalidArgument, hour, minute)
	}

	end := s.now()
	start := end.Add(-time.Duration(months) * 30 * 24 * time.Hour)
	readings, err := s.GetRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	pattern := ExtractDailyPattern(readings, hour, minute, s.loc)
	log.Info().
		Int("months", months).
		Str("target", fmt.Sprintf("%02d:%02d", hour, minute)).
		Int("available", len(readings)).
		Int("days", len(pattern)).
		Msg("daily pattern extracted")
	return pattern, nil
}

// Location is the time zone used for pattern matching.
func (s *Service) Location() *time.Location {
	return s.loc
}

func rangeDays(r MissingRange) int {
	return int(StartOfDay(r.End).Sub(StartOfDay(r.Start))/(24*time.Hour)) + 1
}
