package calendar

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Weekday is a day of the week ordered Monday first.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

type weekdayInfo struct {
	symbol string
	name   string
}

//nolint:gochecknoglobals // immutable lookup table.
var weekdayTable = [daysPerWeek]weekdayInfo{
	{symbol: "Mon", name: "Monday"},
	{symbol: "Tue", name: "Tuesday"},
	{symbol: "Wed", name: "Wednesday"},
	{symbol: "Thu", name: "Thursday"},
	{symbol: "Fri", name: "Friday"},
	{symbol: "Sat", name: "Saturday"},
	{symbol: "Sun", name: "Sunday"},
}

// Weekdays returns all weekdays in order Monday through Sunday.
func Weekdays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

// Valid reports whether w is one of the seven weekdays.
func (w Weekday) Valid() bool {
	return w >= Monday && w <= Sunday
}

// String returns the three-letter English symbol, e.g. "Mon".
func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayTable[w].symbol
}

// Name returns the full English name, e.g. "Monday".
func (w Weekday) Name() string {
	if !w.Valid() {
		return w.String()
	}
	return weekdayTable[w].name
}

// FromTime converts the weekday of t.
func FromTime(t time.Time) Weekday {
	// time.Weekday starts from Sunday.
	return Weekday((int(t.Weekday()) + daysPerWeek - 1) % daysPerWeek)
}

// ParseWeekday parses a weekday symbol or name case-insensitively. Any prefix of at least three letters of
// the English name is accepted, so "mon", "Mon" and "monday" all parse to Monday.
func ParseWeekday(s string) (Weekday, error) {
	const minPrefix = 3
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= minPrefix {
		for i, info := range weekdayTable {
			if strings.HasPrefix(strings.ToLower(info.name), s) {
				return Weekday(i), nil
			}
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// ContainsWeekday reports whether set contains w.
func ContainsWeekday(set []Weekday, w Weekday) bool {
	return slices.Contains(set, w)
}

// NormalizeWeekdays returns the valid weekdays of set sorted Monday first without duplicates.
func NormalizeWeekdays(set []Weekday) []Weekday {
	normalized := make([]Weekday, 0, len(set))
	for _, w := range set {
		if w.Valid() {
			normalized = append(normalized, w)
		}
	}
	slices.Sort(normalized)
	return slices.Compact(normalized)
}

// DefaultTrainingWeekdays returns the first n weekdays starting from Monday.
func DefaultTrainingWeekdays(n int) []Weekday {
	n = max(0, min(n, daysPerWeek))
	return Weekdays()[:n]
}

// WeekdaySlot returns the 0-based index of w within the normalized set.
func WeekdaySlot(set []Weekday, w Weekday) (int, bool) {
	i := slices.Index(NormalizeWeekdays(set), w)
	return i, i >= 0
}

// FormatWeekdays joins the weekday symbols with commas.
func FormatWeekdays(set []Weekday) string {
	symbols := make([]string, len(set))
	for i, w := range set {
		symbols[i] = w.String()
	}
	return strings.Join(symbols, ",")
}

// ParseWeekdays parses a comma separated list written by [FormatWeekdays].
func ParseWeekdays(s string) ([]Weekday, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var set []Weekday
	for part := range strings.SplitSeq(s, ",") {
		w, err := ParseWeekday(part)
		if err != nil {
			return nil, err
		}
		set = append(set, w)
	}
	return NormalizeWeekdays(set), nil
}
