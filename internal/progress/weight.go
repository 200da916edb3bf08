package progress

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// ParseWeight parses user entered kilograms such as "82.5", "82,5" or "82.5 kg". Blank input yields nil and
// true, anything else that is not a plain decimal number yields nil and false.
func ParseWeight(s string) (*float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, true
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, "kg"))
	s = strings.ReplaceAll(s, ",", ".")
	// ParseFloat also takes underscores, exponents and hex, none of which is a weight.
	if s == "" || strings.Trim(s, "0123456789.+-") != "" {
		return nil, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(v) {
		return nil, false
	}
	return &v, true
}

// Trend is a measurement series with deltas, e.g. body weight over time.
type Trend struct {
	Name    string
	Points  []Point
	Weekly  Delta
	Monthly Delta
}

// MeasurementTrend computes the deltas of a measurement series. points need not be sorted and non-finite
// values are dropped.
func MeasurementTrend(name string, points []Point) Trend {
	sorted := slices.DeleteFunc(slices.Clone(points), func(p Point) bool {
		return !isFinite(p.WeightKg)
	})
	sortPoints(sorted)
	sorted = dedupeByDate(sorted)
	return Trend{
		Name:    name,
		Points:  sorted,
		Weekly:  Weekly(sorted),
		Monthly: Monthly(sorted),
	}
}

// dedupeByDate keeps the last point of each date from a sorted slice.
func dedupeByDate(points []Point) []Point {
	out := points[:0]
	var last time.Time
	for i, p := range points {
		if i > 0 && p.Date.Equal(last) {
			out[len(out)-1] = p
			continue
		}
		out = append(out, p)
		last = p.Date
	}
	return out
}
