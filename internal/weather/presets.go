package weather

import (
	"strconv"
	"time"
)

// Range presets understood by PresetRange.
const (
	Range24h = "24h"
	Range7d  = "7d"
	Range1m  = "1m"
	Range3m  = "3m"
)

var presetSpans = map[string]time.Duration{
	Range24h: 24 * time.Hour,
	Range7d:  7 * 24 * time.Hour,
	Range1m:  30 * 24 * time.Hour,
	Range3m:  90 * 24 * time.Hour,
}

// PresetRange resolves a named trailing window ending at now. Unknown names
// fall back to 24h; the resolved name is returned alongside.
func PresetRange(name string, now time.Time) (start, end time.Time, resolved string) {
	span, ok := presetSpans[name]
	if !ok {
		name, span = Range24h, presetSpans[Range24h]
	}
	return now.Add(-span), now, name
}

// TemperatureSeries projects readings to chart points holding the time and
// one "temp<id>" entry per requested sensor, nil when the channel is absent.
func TemperatureSeries(readings []Reading, sensorIDs []int) []map[string]any {
	series := make([]map[string]any, 0, len(readings))
	for _, r := range readings {
		point := map[string]any{"time": r.Date}
		for _, id := range sensorIDs {
			key := "temp" + strconv.Itoa(id)
			if v, ok := r.TempF(id); ok {
				point[key] = v
			} else {
				point[key] = nil
			}
		}
		series = append(series, point)
	}
	return series
}

