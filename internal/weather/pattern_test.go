package weather_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/ambient-history-cache/internal/store"
	"github.com/i474232898/ambient-history-cache/internal/weather"
)

func TestExtractDailyPattern(t *testing.T) {
	readings := []weather.Reading{
		at(ts("2024-06-10T08:20:00Z"), 3),
		at(ts("2024-06-10T08:05:00Z"), 2),
		at(ts("2024-06-10T07:50:00Z"), 1),
		at(ts("2024-06-11T08:15:00Z"), 4),
		at(ts("2024-06-12T07:44:00Z"), 5),
		at(ts("2024-06-12T12:00:00Z"), 6),
	}

	got := weather.ExtractDailyPattern(readings, 8, 0, time.UTC)
	require.Len(t, got, 2)
	assert.Equal(t, ts("2024-06-10T07:50:00Z"), got[0].Date)
	assert.Equal(t, ts("2024-06-11T08:15:00Z"), got[1].Date)
}

func TestExtractDailyPattern_UsesLocation(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*60*60)
	readings := []weather.Reading{
		at(ts("2024-06-10T06:00:00Z"), 1), // 08:00 local
		at(ts("2024-06-10T08:00:00Z"), 2), // 10:00 local
	}

	got := weather.ExtractDailyPattern(readings, 8, 0, berlin)
	require.Len(t, got, 1)
	assert.Equal(t, ts("2024-06-10T06:00:00Z"), got[0].Date)
}

func TestExtractDailyPattern_NoMatch(t *testing.T) {
	got := weather.ExtractDailyPattern([]weather.Reading{at(ts("2024-06-10T15:00:00Z"), 1)}, 8, 0, time.UTC)
	assert.Empty(t, got)
}

func TestService_DailyPattern(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	_, err := st.Insert(ctx, []weather.Reading{
		at(ts("2024-06-10T07:50:00Z"), 1),
		at(ts("2024-06-10T08:05:00Z"), 2),
		at(ts("2024-06-10T08:20:00Z"), 3),
	})
	require.NoError(t, err)

	empty := &scriptedProvider{respond: func(int, weather.Query) ([]weather.Reading, error) { return nil, nil }}
	svc, _ := newTestService(t, st, empty)

	got, err := svc.DailyPattern(ctx, 1, 8, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ts("2024-06-10T07:50:00Z"), got[0].Date)

	calls := empty.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, weather.StartOfDay(fixedNow.Add(-30*24*time.Hour)), calls[0].Start)
}

func TestService_DailyPatternRejectsBadArguments(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemoryStore(), &scriptedProvider{})
	ctx := context.Background()

	for _, tc := range []struct{ months, hour, minute int }{
		{0, 8, 0},
		{1, 24, 0},
		{1, -1, 0},
		{1, 8, 60},
	} {
		_, err := svc.DailyPattern(ctx, tc.months, tc.hour, tc.minute)
		assert.ErrorIs(t, err, weather.ErrInvalidArgument, "%+v", tc)
	}
}

func TestFindPatternTime(t *testing.T) {
	assert.Equal(t, 12, weather.FindPatternTime(weather.DefaultPatternTimes, "Lunch").Hour)
	assert.Equal(t, "Breakfast", weather.FindPatternTime(weather.DefaultPatternTimes, "Brunch").Name)
	assert.Equal(t, "Breakfast", weather.FindPatternTime(nil, "Lunch").Name)
}

func TestPatternPoints(t *testing.T) {
	r := weather.NewReading(ts("2024-06-10T23:30:00Z"), map[string]any{"temp1f": 70.0, "temp3f": 65.5})
	points := weather.PatternPoints([]weather.Reading{r}, time.FixedZone("X", 3600))
	require.Len(t, points, 1)

	p := points[0]
	assert.Equal(t, "2024-06-11", p.Date)
	require.NotNil(t, p.Temps[0])
	assert.Equal(t, 70.0, *p.Temps[0])
	assert.Nil(t, p.Temps[1])
	require.NotNil(t, p.Temps[2])
	assert.Equal(t, 65.5, *p.Temps[2])
	require.NotNil(t, p.TempF)
	assert.Equal(t, 70.0, *p.TempF)
}
