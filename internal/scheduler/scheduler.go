package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/ambient-history-cache/internal/weather"
)

// RangeGetter is the part of weather.Service the warmer needs.
type RangeGetter interface {
	GetRange(ctx context.Context, start, end time.Time) ([]weather.Reading, error)
}

// Scheduler periodically pulls the trailing window through the cache so
// recent days are already stored when a client asks for them.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   RangeGetter
	interval  time.Duration
	window    time.Duration
	now       func() time.Time
}

// New creates a new Scheduler. An interval <= 0 disables it.
func New(service RangeGetter, interval, window time.Duration) *Scheduler {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		interval:  interval,
		window:    window,
		now:       time.Now,
	}
}

// Start schedules the warm job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		log.Info().Msg("scheduler: cache warming disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.interval)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	log.Info().Dur("interval", s.interval).Dur("window", s.window).Msg("scheduler: cache warming started")
	return nil
}

// RunOnce warms [now-window, now] a single time.
func (s *Scheduler) RunOnce(ctx context.Context) {
	end := s.now()
	start := end.Add(-s.window)

	log.Debug().Time("start", start).Time("end", end).Msg("scheduler: warming cache")
	readings, err := s.service.GetRange(ctx, start, end)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: cache warm failed")
		return
	}
	log.Info().Int("readings", len(readings)).Msg("scheduler: cache warm completed")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
