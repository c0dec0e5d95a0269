package weather

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// NumSensors is the number of sensor channels a station reports.
const NumSensors = 8

// DayKeyLayout is the layout of cache partition keys.
const DayKeyLayout = "2006-01-02"

// Reading is one timestamped multi-sensor record as returned by the device
// provider. Date is required; every other channel lives in Fields untouched,
// so a record survives a cache round-trip byte for byte.
type Reading struct {
	Date   time.Time
	Fields map[string]any
}

// NewReading builds a reading at t with the given channel values.
func NewReading(t time.Time, fields map[string]any) Reading {
	if fields == nil {
		fields = map[string]any{}
	}
	return Reading{Date: t.UTC(), Fields: fields}
}

// Validate reports whether the reading can be cached.
func (r Reading) Validate() error {
	if r.Date.IsZero() {
		return &ValidationError{Reason: "reading missing date"}
	}
	return nil
}

// DayKey returns the UTC calendar day the reading belongs to.
func (r Reading) DayKey() string {
	return DayKey(r.Date)
}

// Float returns a numeric channel by name.
func (r Reading) Float(name string) (float64, bool) {
	v, ok := r.Fields[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// TempF is the temperature in Fahrenheit of sensor i (1..8).
func (r Reading) TempF(i int) (float64, bool) { return r.Float(fmt.Sprintf("temp%df", i)) }

// Humidity is the relative humidity of sensor i.
func (r Reading) Humidity(i int) (float64, bool) { return r.Float(fmt.Sprintf("humidity%d", i)) }

// FeelsLike is the apparent temperature of sensor i.
func (r Reading) FeelsLike(i int) (float64, bool) { return r.Float(fmt.Sprintf("feelsLike%d", i)) }

// DewPoint is the dew point of sensor i.
func (r Reading) DewPoint(i int) (float64, bool) { return r.Float(fmt.Sprintf("dewPoint%d", i)) }

// Battery reports the battery flag of sensor i. Stations send 1 for OK.
func (r Reading) Battery(i int) (bool, bool) {
	v, ok := r.Fields[fmt.Sprintf("batt%d", i)]
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	default:
		f, ok := r.Float(fmt.Sprintf("batt%d", i))
		return f != 0, ok
	}
}

// OutdoorTempF prefers the station's own outdoor channel and falls back to
// sensor 1.
func (r Reading) OutdoorTempF() (float64, bool) {
	if v, ok := r.Float("tempf"); ok {
		return v, true
	}
	return r.TempF(1)
}

// MarshalJSON writes the flat provider shape with the date as RFC 3339.
func (r Reading) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	if !r.Date.IsZero() {
		out["date"] = r.Date.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts a flat record. The timestamp comes from "date"
// (RFC 3339) or, when "date" is absent, "dateutc" (epoch milliseconds). A
// record without a usable timestamp decodes with a zero Date, keeps any raw
// "date" value in Fields and fails Validate, so one bad entry never spoils
// the rest of a payload.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Date = time.Time{}
	r.Fields = raw

	if v, ok := raw["date"]; ok && v != nil {
		s, _ := v.(string)
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil
		}
		r.Date = t.UTC()
		delete(raw, "date")
		return nil
	}
	delete(raw, "date")
	if ms, ok := raw["dateutc"].(float64); ok {
		r.Date = time.UnixMilli(int64(ms)).UTC()
	}
	return nil
}

// DayKey maps a timestamp to its UTC calendar day.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyLayout)
}

// ParseDayKey returns midnight UTC of the given day key.
func ParseDayKey(key string) (time.Time, error) {
	t, err := time.Parse(DayKeyLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad day key %q", ErrInvalidArgument, key)
	}
	return t, nil
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MissingRange is an inclusive span of uncached days.
type MissingRange struct {
	Start time.Time
	End   time.Time
}

func (m MissingRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		StartDate int64 `json:"startDate"`
		EndDate   int64 `json:"endDate"`
	}{m.Start.UnixMilli(), m.End.UnixMilli()})
}

func (m MissingRange) String() string {
	return m.Start.Format(time.RFC3339) + ".." + m.End.Format(time.RFC3339Nano)
}

// Cache is the full persisted state: readings partitioned by day key.
type Cache struct {
	Readings    map[string][]Reading
	LastUpdated time.Time
}

// NewCache returns an empty cache stamped with now.
func NewCache(now time.Time) *Cache {
	return &Cache{Readings: make(map[string][]Reading), LastUpdated: now.UTC()}
}

// Merge appends readings to their day partitions, skipping any whose
// timestamp is already present. The first reading stored for a timestamp
// wins. It returns how many readings were added; LastUpdated is bumped
// regardless.
func (c *Cache) Merge(readings []Reading, now time.Time) int {
	if c.Readings == nil {
		c.Readings = make(map[string][]Reading)
	}
	seen := make(map[string]map[int64]struct{})
	added := 0
	for _, r := range readings {
		if r.Validate() != nil {
			continue
		}
		key := r.DayKey()
		idx, ok := seen[key]
		if !ok {
			idx = make(map[int64]struct{}, len(c.Readings[key]))
			for _, existing := range c.Readings[key] {
				idx[existing.Date.UnixNano()] = struct{}{}
			}
			seen[key] = idx
		}
		ts := r.Date.UnixNano()
		if _, dup := idx[ts]; dup {
			continue
		}
		idx[ts] = struct{}{}
		c.Readings[key] = append(c.Readings[key], r)
		added++
	}
	c.LastUpdated = now.UTC()
	return added
}

// Days returns the cached day keys in ascending order.
func (c *Cache) Days() []string {
	keys := make([]string, 0, len(c.Readings))
	for k := range c.Readings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count is the total number of cached readings.
func (c *Cache) Count() int {
	n := 0
	for _, rs := range c.Readings {
		n += len(rs)
	}
	return n
}

type cacheJSON struct {
	Readings    map[string][]Reading `json:"readings"`
	LastUpdated int64                `json:"lastUpdated"`
}

func (c Cache) MarshalJSON() ([]byte, error) {
	readings := c.Readings
	if readings == nil {
		readings = map[string][]Reading{}
	}
	return json.Marshal(cacheJSON{Readings: readings, LastUpdated: c.LastUpdated.UnixMilli()})
}

func (c *Cache) UnmarshalJSON(data []byte) error {
	var raw cacheJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Readings = raw.Readings
	if c.Readings == nil {
		c.Readings = make(map[string][]Reading)
	}
	c.LastUpdated = time.UnixMilli(raw.LastUpdated).UTC()
	return nil
}

// SortReadings orders readings by timestamp, keeping the relative order of
// equal timestamps.
func SortReadings(rs []Reading) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Date.Before(rs[j].Date) })
}

// dedupe drops later readings whose timestamp was already seen.
func dedupe(rs []Reading) []Reading {
	seen := make(map[int64]struct{}, len(rs))
	out := rs[:0]
	for _, r := range rs {
		ts := r.Date.UnixNano()
		if _, ok := seen[ts]; ok {
			continue
		}
		seen[ts] = struct{}{}
		out = append(out, r)
	}
	return out
}
