package plan

import (
	"regexp"
	"strconv"
)

// dayLabelPattern matches a day word followed by a number, e.g. "Day 3", "Día 3 - Pierna", "D3" or
// "Session 2".
//
//nolint:gochecknoglobals // compiled once.
var dayLabelPattern = regexp.MustCompile(`(?i)\b(?:day|d[ií]a|d|session|sesi[oó]n|workout)\s*[#.:-]?\s*(\d+)`)

// ParseDayLabel extracts a positive day index from a training day label.
func ParseDayLabel(label string) (int, bool) {
	m := dayLabelPattern.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
