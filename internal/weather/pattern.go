package weather

import (
	"time"
)

// PatternTolerance is how far from the target time of day a reading may lie.
const PatternTolerance = 15 * time.Minute

// ExtractDailyPattern keeps readings whose wall-clock time in loc is within
// PatternTolerance of hour:minute (minute resolution, no wrap at midnight)
// and collapses them to the earliest match per calendar day in loc.
func ExtractDailyPattern(readings []Reading, hour, minute int, loc *time.Location) []Reading {
	if loc == nil {
		loc = time.UTC
	}
	target := hour*60 + minute
	tolerance := int(PatternTolerance / time.Minute)

	matched := make([]Reading, 0, len(readings))
	for _, r := range readings {
		t := r.Date.In(loc)
		diff := t.Hour()*60 + t.Minute() - target
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolerance {
			matched = append(matched, r)
		}
	}
	SortReadings(matched)

	seen := make(map[string]struct{})
	out := make([]Reading, 0, len(matched))
	for _, r := range matched {
		day := r.Date.In(loc).Format(DayKeyLayout)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, r)
	}
	return out
}

// PatternTime is a named time of day used for pattern queries.
type PatternTime struct {
	Name   string `yaml:"name" json:"name" validate:"required"`
	Hour   int    `yaml:"hour" json:"hour" validate:"min=0,max=23"`
	Minute int    `yaml:"minute" json:"minute" validate:"min=0,max=59"`
}

// DefaultPatternTimes are the built-in meal and bedtime slots.
var DefaultPatternTimes = []PatternTime{
	{Name: "Breakfast", Hour: 8, Minute: 0},
	{Name: "Lunch", Hour: 12, Minute: 0},
	{Name: "Dinner", Hour: 18, Minute: 0},
	{Name: "Bedtime", Hour: 21, Minute: 0},
}

// FindPatternTime looks name up in times, falling back to the first entry.
func FindPatternTime(times []PatternTime, name string) PatternTime {
	for _, t := range times {
		if t.Name == name {
			return t
		}
	}
	if len(times) == 0 {
		return DefaultPatternTimes[0]
	}
	return times[0]
}

// PatternPoint is the chart-ready projection of one pattern reading.
type PatternPoint struct {
	Date  string               `json:"date"`
	Temps [NumSensors]*float64 `json:"temps"`
	TempF *float64             `json:"tempf"`
}

// PatternPoints projects pattern readings for display, dating each in loc.
func PatternPoints(readings []Reading, loc *time.Location) []PatternPoint {
	if loc == nil {
		loc = time.UTC
	}
	points := make([]PatternPoint, 0, len(readings))
	for _, r := range readings {
		p := PatternPoint{Date: r.Date.In(loc).Format(DayKeyLayout)}
		for i := 1; i <= NumSensors; i++ {
			if v, ok := r.TempF(i); ok {
				v := v
				p.Temps[i-1] = &v
			}
		}
		if v, ok := r.OutdoorTempF(); ok {
			p.TempF = &v
		}
		points = append(points, p)
	}
	return points
}
