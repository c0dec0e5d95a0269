package weather

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Fetcher defaults, sized for the Ambient Weather API: one call returns at
// most 288 records, i.e. one day at 5-minute resolution.
const (
	DefaultChunkSize         = 24 * time.Hour
	DefaultChunkLimit        = 288
	DefaultChunkDelay        = time.Second
	DefaultRateLimitCooldown = 5 * time.Second

	// MinChunkSize bounds how finely a range may be split.
	MinChunkSize = time.Minute
)

// FetcherConfig tunes chunking and pacing. Zero fields take the defaults;
// a negative Delay disables inter-chunk pacing. A ChunkSize below
// MinChunkSize is raised to it.
type FetcherConfig struct {
	ChunkSize time.Duration
	Limit     int
	Delay     time.Duration
	Cooldown  time.Duration
}

func (c FetcherConfig) withDefaults() FetcherConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	} else if c.ChunkSize < MinChunkSize {
		c.ChunkSize = MinChunkSize
	}
	if c.Limit <= 0 {
		c.Limit = DefaultChunkLimit
	}
	if c.Delay < 0 {
		c.Delay = 0
	} else if c.Delay == 0 {
		c.Delay = DefaultChunkDelay
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultRateLimitCooldown
	}
	return c
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fetcher pulls a missing range from the provider one bounded chunk at a
// time. Calls are strictly sequential; a failed chunk is logged and skipped.
type Fetcher struct {
	provider Provider
	deviceID string
	cfg      FetcherConfig
	sleep    SleepFunc
	observer Observer
}

// NewFetcher creates a Fetcher for deviceID.
func NewFetcher(provider Provider, deviceID string, cfg FetcherConfig) *Fetcher {
	return &Fetcher{
		provider: provider,
		deviceID: deviceID,
		cfg:      cfg.withDefaults(),
		sleep:    sleepContext,
		observer: nopObserver{},
	}
}

// SetSleep replaces the pause function; tests use it to avoid real delays.
func (f *Fetcher) SetSleep(fn SleepFunc) {
	if fn != nil {
		f.sleep = fn
	}
}

// SetObserver installs an event observer.
func (f *Fetcher) SetObserver(o Observer) {
	if o != nil {
		f.observer = o
	}
}

// Chunks splits r into consecutive spans no longer than the chunk size.
func (f *Fetcher) Chunks(r MissingRange) []MissingRange {
	var chunks []MissingRange
	for cur := r.Start; !cur.After(r.End); {
		end := cur.Add(f.cfg.ChunkSize - time.Millisecond)
		if end.After(r.End) {
			end = r.End
		}
		chunks = append(chunks, MissingRange{Start: cur, End: end})
		cur = end.Add(time.Millisecond)
	}
	return chunks
}

// Fetch returns the valid readings of every chunk of r that succeeded, in
// chunk order. Remote failures never surface; only context cancellation
// does, together with whatever was collected so far.
func (f *Fetcher) Fetch(ctx context.Context, r MissingRange) ([]Reading, error) {
	var out []Reading
	for _, chunk := range f.Chunks(r) {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		logger := log.With().
			Time("chunk_start", chunk.Start).
			Time("chunk_end", chunk.End).
			Logger()
		logger.Info().Msg("fetching chunk")

		data, err := f.provider.DeviceData(ctx, f.deviceID, Query{
			Start: chunk.Start,
			End:   chunk.End,
			Limit: f.cfg.Limit,
		})
		switch {
		case err != nil && ctx.Err() != nil:
			return out, ctx.Err()
		case err != nil && IsRateLimited(err):
			f.observer.ChunkFetched(OutcomeRateLimited, 0)
			logger.Warn().Err(err).Dur("cooldown", f.cfg.Cooldown).Msg("rate limited, skipping chunk")
			if serr := f.sleep(ctx, f.cfg.Cooldown); serr != nil {
				return out, serr
			}
		case err != nil:
			f.observer.ChunkFetched(OutcomeError, 0)
			logger.Error().Err(err).Msg("chunk fetch failed, skipping")
		default:
			valid := f.validate(data)
			f.observer.ChunkFetched(OutcomeOK, len(valid))
			logger.Info().Int("retrieved", len(data)).Int("valid", len(valid)).Msg("chunk fetched")
			out = append(out, valid...)
		}

		if err := f.sleep(ctx, f.cfg.Delay); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (f *Fetcher) validate(data []Reading) []Reading {
	valid := make([]Reading, 0, len(data))
	dropped := 0
	for _, r := range data {
		if err := r.Validate(); err != nil {
			dropped++
			log.Warn().Err(err).Interface("fields", r.Fields).Msg("dropping reading")
			continue
		}
		valid = append(valid, r)
	}
	if dropped > 0 {
		f.observer.ReadingsDropped(dropped)
	}
	return valid
}
