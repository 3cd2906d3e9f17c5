// Package allocation computes the per-day impression series for a
// campaign flight. It is the single implementation consumed by the
// preview, export and monitor code paths; financial exports depend on
// its numbers being bit-for-bit reproducible, in particular on where
// division remainders land.
package allocation

import (
	"sort"
	"time"

	"github.com/caliperdev/campaignmanager/internal/dateutil"
	"github.com/caliperdev/campaignmanager/internal/models"
)

// Series maps ISO dates (YYYY-MM-DD) to allocated impressions. Every
// day of the flight is present with a non-negative value; dark days
// carry 0.
type Series map[string]int64

// Total returns the summed impressions of the series.
func (s Series) Total() int64 {
	var sum int64
	for _, v := range s {
		sum += v
	}
	return sum
}

// Dates returns the series keys in chronological order.
func (s Series) Dates() []string {
	out := make([]string, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Allocate computes the daily series for one flight. A flight with
// start after end yields an empty series. The mode selects between
// the even split and the custom range layout; ranges are only
// consulted in custom mode.
func Allocate(start, end time.Time, goal int64, mode models.DistributionMode, ranges []models.Range) Series {
	if mode == models.DistributionCustom {
		return allocateCustom(start, end, goal, ranges)
	}
	return AllocateEven(start, end, goal)
}

// AllocateEven spreads goal evenly across [start, end]: every day
// gets floor(goal/days), and the chronologically last day absorbs the
// remainder. This remainder rule is canonical across the system;
// remainders are never distributed proportionally.
func AllocateEven(start, end time.Time, goal int64) Series {
	days := dateutil.Days(start, end)
	if len(days) == 0 {
		return Series{}
	}
	base := goal / int64(len(days))
	remainder := goal - base*int64(len(days))

	out := make(Series, len(days))
	for i, d := range days {
		v := base
		if i == len(days)-1 {
			v += remainder
		}
		out[d.Format(dateutil.ISO)] = v
	}
	return out
}

// allocateCustom lays out dark and goal ranges over the flight, then
// spreads whatever is left of the campaign goal across the days no
// range covers.
//
// Ranges may overlap; the later range in list order wins for shared
// dates (overlap is rejected at the validation layer, not here). If
// the range goals exceed the campaign goal the uncovered-day fill
// clamps to zero rather than going negative.
func allocateCustom(start, end time.Time, goal int64, ranges []models.Range) Series {
	days := dateutil.Days(start, end)
	if len(days) == 0 {
		return Series{}
	}

	out := make(Series, len(days))
	covered := make(map[string]bool, len(days))
	flightStart, flightEnd := days[0], days[len(days)-1]

	var allocatedInRanges int64
	for _, r := range ranges {
		rs, re := dateutil.Midnight(r.StartDate.Time), dateutil.Midnight(r.EndDate.Time)
		if r.IsDark {
			for _, d := range clip(rs, re, flightStart, flightEnd) {
				key := d.Format(dateutil.ISO)
				out[key] = 0
				covered[key] = true
			}
			continue
		}
		if r.ImpressionsGoal == nil {
			continue
		}
		rangeGoal := *r.ImpressionsGoal
		allocatedInRanges += rangeGoal

		rangeDays := dateutil.DaysInRange(rs, re)
		if rangeDays == 0 {
			continue
		}
		base := rangeGoal / int64(rangeDays)
		remainder := rangeGoal - base*int64(rangeDays)
		lastKey := re.Format(dateutil.ISO)
		for _, d := range clip(rs, re, flightStart, flightEnd) {
			key := d.Format(dateutil.ISO)
			v := base
			if key == lastKey {
				v += remainder
			}
			out[key] = v
			covered[key] = true
		}
	}

	var uncovered []string
	for _, d := range days {
		key := d.Format(dateutil.ISO)
		if !covered[key] {
			uncovered = append(uncovered, key)
		}
	}

	remaining := goal - allocatedInRanges
	if remaining < 0 {
		remaining = 0
	}
	if remaining > 0 && len(uncovered) > 0 {
		sort.Strings(uncovered)
		base := remaining / int64(len(uncovered))
		remainder := remaining - base*int64(len(uncovered))
		for i, key := range uncovered {
			v := base
			if i == len(uncovered)-1 {
				v += remainder
			}
			out[key] = v
		}
	} else {
		for _, key := range uncovered {
			out[key] = 0
		}
	}

	return out
}

// clip enumerates the days of [rs, re] that fall inside [lo, hi].
func clip(rs, re, lo, hi time.Time) []time.Time {
	if rs.Before(lo) {
		rs = lo
	}
	if re.After(hi) {
		re = hi
	}
	return dateutil.Days(rs, re)
}
