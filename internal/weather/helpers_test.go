package weather_test

import (
	"context"
	"sync"
	"time"

	"github.com/i474232898/ambient-history-cache/internal/weather"
)

// scriptedProvider records every call and answers through respond. The
// default answer is one reading per hour inside the queried window.
type scriptedProvider struct {
	mu      sync.Mutex
	calls   []weather.Query
	respond func(call int, q weather.Query) ([]weather.Reading, error)
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) DeviceData(ctx context.Context, deviceID string, q weather.Query) ([]weather.Reading, error) {
	p.mu.Lock()
	p.calls = append(p.calls, q)
	call := len(p.calls)
	respond := p.respond
	p.mu.Unlock()

	if respond != nil {
		return respond(call, q)
	}
	return hourly(q.Start, q.End), nil
}

func (p *scriptedProvider) Calls() []weather.Query {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]weather.Query(nil), p.calls...)
}

func hourly(start, end time.Time) []weather.Reading {
	var out []weather.Reading
	for t := start.Truncate(time.Hour); !t.After(end); t = t.Add(time.Hour) {
		if t.Before(start) {
			continue
		}
		out = append(out, at(t, 70))
	}
	return out
}

func at(t time.Time, temp float64) weather.Reading {
	return weather.NewReading(t, map[string]any{"temp1f": temp})
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

type countingObserver struct {
	mu          sync.Mutex
	outcomes    map[string]int
	dropped     int
	hitDays     int
	missingDays int
	cached      int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{outcomes: make(map[string]int)}
}

func (o *countingObserver) ChunkFetched(outcome string, n int) {
	o.mu.Lock()
	o.outcomes[outcome]++
	o.mu.Unlock()
}

func (o *countingObserver) ReadingsDropped(n int) {
	o.mu.Lock()
	o.dropped += n
	o.mu.Unlock()
}

func (o *countingObserver) CacheLookup(hit, missing int) {
	o.mu.Lock()
	o.hitDays += hit
	o.missingDays += missing
	o.mu.Unlock()
}

func (o *countingObserver) ReadingsCached(n int) {
	o.mu.Lock()
	o.cached += n
	o.mu.Unlock()
}
