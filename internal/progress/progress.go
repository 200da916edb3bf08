// Package progress turns logged set weights into per-exercise time series and weekly/monthly deltas.
//
// Everything here is a pure function of its arguments. Unparseable or missing weights are skipped rather than
// reported as errors because the progress view is best-effort on noisy history.
package progress

import (
	"math"
	"slices"
	"time"

	"github.com/myrjola/planfit/internal/calendar"
)

const (
	// WeeklyWindowDays is the look-back of the weekly delta.
	WeeklyWindowDays = 7
	// MonthlyWindowDays is the look-back of the monthly delta. Exercise and measurement trends both use it.
	MonthlyWindowDays = 30
)

// Point is the representative weight of one date.
type Point struct {
	Date     time.Time
	WeightKg float64
}

// Delta is the change of the latest point against a reference point. Nil fields mean there was not enough
// history to compute them.
type Delta struct {
	Pct *float64
	Kg  *float64
}

// ComputeDelta compares the latest point to the most recent earlier point that is at least daysBack days
// older. points must be sorted ascending by date.
func ComputeDelta(points []Point, daysBack int) Delta {
	if len(points) < 2 { //nolint:mnd // need a latest and a reference point.
		return Delta{Pct: nil, Kg: nil}
	}
	latest := points[len(points)-1]
	threshold := calendar.Date(latest.Date).AddDate(0, 0, -daysBack)

	refIdx := -1
	for i := len(points) - 2; i >= 0; i-- {
		if !calendar.Date(points[i].Date).After(threshold) {
			refIdx = i
			break
		}
	}
	if refIdx < 0 {
		return Delta{Pct: nil, Kg: nil}
	}
	ref := points[refIdx].WeightKg

	kg := round1(latest.WeightKg - ref)
	d := Delta{Pct: nil, Kg: &kg}
	if ref != 0 {
		pct := round1(kg / ref * 100) //nolint:mnd // percent
		d.Pct = &pct
	}
	return d
}

// Weekly is ComputeDelta over WeeklyWindowDays.
func Weekly(points []Point) Delta {
	return ComputeDelta(points, WeeklyWindowDays)
}

// Monthly is ComputeDelta over MonthlyWindowDays.
func Monthly(points []Point) Delta {
	return ComputeDelta(points, MonthlyWindowDays)
}

// round1 rounds half away from zero to one decimal.
func round1(x float64) float64 {
	return math.Round(x*10) / 10 //nolint:mnd // one decimal
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Series reduces records to one point per date, the heaviest finite set weight among sets accepted by match.
// Dates without a valid weight are dropped and the result is sorted ascending by date.
func Series(records []Record, match func(SetLog) bool) []Point {
	byDate := make(map[time.Time]float64)
	for _, r := range records {
		date := calendar.Date(r.Date)
		for _, set := range r.Sets {
			if set.WeightKg == nil || !isFinite(*set.WeightKg) || !match(set) {
				continue
			}
			if current, ok := byDate[date]; !ok || *set.WeightKg > current {
				byDate[date] = *set.WeightKg
			}
		}
	}
	points := make([]Point, 0, len(byDate))
	for date, weight := range byDate {
		points = append(points, Point{Date: date, WeightKg: weight})
	}
	sortPoints(points)
	return points
}

func sortPoints(points []Point) {
	slices.SortStableFunc(points, func(a, b Point) int {
		return a.Date.Compare(b.Date)
	})
}

// averageAndSum rolls up deltas. The average covers non-nil percentages and the sum covers non-nil kilograms.
func averageAndSum(deltas []Delta) (*float64, *float64) {
	var (
		pctSum   float64
		pctCount int
		kgSum    float64
		kgCount  int
	)
	for _, d := range deltas {
		if d.Pct != nil {
			pctSum += *d.Pct
			pctCount++
		}
		if d.Kg != nil {
			kgSum += *d.Kg
			kgCount++
		}
	}
	var avg, sum *float64
	if pctCount > 0 {
		v := round1(pctSum / float64(pctCount))
		avg = &v
	}
	if kgCount > 0 {
		v := round1(kgSum)
		sum = &v
	}
	return avg, sum
}
