package weather

import "time"

// DaySet is a set of cached day keys.
type DaySet map[string]struct{}

// NewDaySet builds a set from keys.
func NewDaySet(keys ...string) DaySet {
	s := make(DaySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether key is in the set.
func (s DaySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// FindMissingRanges walks the days from start to end (inclusive day keys)
// and returns one range per maximal run of days absent from cached. Each
// range runs from the first missing day's midnight to one millisecond
// before the midnight following the last missing day. An inverted interval
// yields no ranges.
func FindMissingRanges(cached DaySet, start, end string) ([]MissingRange, error) {
	first, err := ParseDayKey(start)
	if err != nil {
		return nil, err
	}
	last, err := ParseDayKey(end)
	if err != nil {
		return nil, err
	}

	var (
		ranges  []MissingRange
		runFrom time.Time
		inRun   bool
	)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if cached.Has(DayKey(day)) {
			if inRun {
				ranges = append(ranges, MissingRange{Start: runFrom, End: day.Add(-time.Millisecond)})
				inRun = false
			}
			continue
		}
		if !inRun {
			runFrom = day
			inRun = true
		}
	}
	if inRun {
		ranges = append(ranges, MissingRange{Start: runFrom, End: last.AddDate(0, 0, 1).Add(-time.Millisecond)})
	}
	return ranges, nil
}
