package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"sort"
)

var ErrMalformedMapping = errors.New("malformed tally mapping")

type (
	// Mapping is the date -> count tally. Keys are canonical dates.
	Mapping map[string]float64

	// DayRecord is one row of the tally, used for display.
	DayRecord struct {
		Date  string  `json:"date"`
		Count float64 `json:"count"`
	}

	// Stats are derived from a Mapping and never stored.
	Stats struct {
		TodayCount float64 `json:"today_count"`
		Average    float64 `json:"average"`
	}
)

// Clone returns an independent copy. A nil mapping clones to an empty one.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	maps.Copy(out, m)
	return out
}

// Count returns the value for date, or 0 if absent.
func (m Mapping) Count(date string) float64 {
	return m[date]
}

// History lists the records sorted by date, most recent first.
func (m Mapping) History() []DayRecord {
	out := make([]DayRecord, 0, len(m))
	for d, c := range m {
		out = append(out, DayRecord{Date: d, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// Stats derives today's count and the average.
func (m Mapping) Stats(today string) Stats {
	return Stats{
		TodayCount: m.Count(today),
		Average:    ComputeAverage(m),
	}
}

// ComputeAverage returns the mean of all counts rounded to two decimals,
// or 0 for an empty mapping.
func ComputeAverage(m Mapping) float64 {
	if len(m) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m {
		sum += v
	}
	return RoundCents(sum / float64(len(m)))
}

// RoundCents rounds half away from zero to two decimals.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatAverage renders an average the way the screen shows it: two decimals.
func FormatAverage(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// EncodeMapping serialises the full mapping as a JSON object.
func EncodeMapping(m Mapping) ([]byte, error) {
	if m == nil {
		m = Mapping{}
	}
	return json.Marshal(m)
}

// DecodeMapping parses a persisted snapshot. Anything other than a JSON object
// mapping canonical dates to numbers is reported as ErrMalformedMapping.
func DecodeMapping(data []byte) (Mapping, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrMalformedMapping
	}
	var raw map[string]*float64
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMapping, err)
	}

	m := make(Mapping, len(raw))
	for k, v := range raw {
		if d, err := ParseDate(k); err != nil || d != k {
			return nil, fmt.Errorf("%w: key %q is not a date", ErrMalformedMapping, k)
		}
		if v == nil {
			return nil, fmt.Errorf("%w: null count for %s", ErrMalformedMapping, k)
		}
		m[k] = *v
	}
	return m, nil
}
