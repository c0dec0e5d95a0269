package providers

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/i474232898/ambient-history-cache/internal/weather"
)

// MockInterval is the spacing between synthetic records, matching a real
// station's upload cadence.
const MockInterval = 5 * time.Minute

// MockProvider fabricates plausible station data for demos and tests.
type MockProvider struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// NewMockProvider creates a mock seeded with seed.
func NewMockProvider(seed int64) *MockProvider {
	return &MockProvider{rnd: rand.New(rand.NewSource(seed)), now: time.Now}
}

func (p *MockProvider) Name() string {
	return "mock"
}

// DeviceData returns records every MockInterval walking back from q.End (or
// now), newest first, stopping at q.Start or after q.Limit records.
func (p *MockProvider) DeviceData(ctx context.Context, deviceID string, q weather.Query) ([]weather.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 1
	}
	end := q.End
	if end.IsZero() {
		end = p.now()
	}
	end = end.Truncate(MockInterval)
	if deviceID == "" {
		deviceID = "00:00:00:00:00:00"
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	data := make([]weather.Reading, 0, limit)
	for i := 0; i < limit; i++ {
		t := end.Add(-time.Duration(i) * MockInterval)
		if !q.Start.IsZero() && t.Before(q.Start) {
			break
		}
		data = append(data, p.entry(t, deviceID))
	}
	return data, nil
}

func (p *MockProvider) entry(t time.Time, mac string) weather.Reading {
	wave := math.Sin(float64(t.UnixMilli())/3600000) * 10
	fields := map[string]any{
		"macAddress": mac,
		"dateutc":    float64(t.UnixMilli()),
		"temp1f":     72 + wave + p.rnd.Float64(),
		"humidity1":  45 + p.rnd.Float64()*5,
		"batt1":      float64(1),
		"feelsLike1": 72 + wave,
		"dewPoint1":  float64(55),
		"temp2f":     68 + p.rnd.Float64(),
		"humidity2":  40 + p.rnd.Float64()*2,
		"batt2":      float64(1),
		"feelsLike2": float64(68),
		"dewPoint2":  float64(50),
	}
	for j := 3; j <= weather.NumSensors; j++ {
		fields[fmt.Sprintf("temp%df", j)] = 70 + p.rnd.Float64()*5
		fields[fmt.Sprintf("humidity%d", j)] = 42 + p.rnd.Float64()*3
		fields[fmt.Sprintf("batt%d", j)] = float64(1)
		fields[fmt.Sprintf("feelsLike%d", j)] = float64(70)
		fields[fmt.Sprintf("dewPoint%d", j)] = float64(52)
	}
	return weather.NewReading(t, fields)
}
