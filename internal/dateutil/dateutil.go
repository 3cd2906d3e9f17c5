// Package dateutil provides the calendar arithmetic shared by the
// allocation, rollup and export code paths. All computations operate on
// UTC midnights; a "day" is always a calendar day, never 24 hours of
// wall clock.
package dateutil

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ISO is the canonical day format used for series keys and exports.
const ISO = "2006-01-02"

const msPerDay = 86400000

// Midnight truncates t to UTC midnight.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysInRange returns the inclusive day count between a and b,
// computed as round((b-a in ms)/86400000)+1. Never negative: a range
// with b before a counts zero days.
func DaysInRange(a, b time.Time) int {
	a, b = Midnight(a), Midnight(b)
	if b.Before(a) {
		return 0
	}
	ms := float64(b.Sub(a).Milliseconds())
	return int(math.Round(ms/msPerDay)) + 1
}

// Days enumerates every day in [a, b] inclusive, at UTC midnight.
func Days(a, b time.Time) []time.Time {
	n := DaysInRange(a, b)
	if n == 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	for d := Midnight(a); !d.After(Midnight(b)); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// MonthKey returns the YYYY-MM bucket key for t.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// QuarterKey returns the YYYY-Qn bucket key for t, with the quarter
// computed as ceil(month/3).
func QuarterKey(t time.Time) string {
	q := (int(t.Month()) + 2) / 3
	return t.Format("2006") + "-Q" + strconv.Itoa(q)
}

// YearKey returns the YYYY bucket key for t.
func YearKey(t time.Time) string {
	return t.Format("2006")
}

// ParseMonthKey parses a YYYY-MM bucket key back into a time.
func ParseMonthKey(key string) (time.Time, bool) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseSourceDate parses a date field as delivered by external
// sources. Accepted shapes, in order: a plain YYYY-MM-DD prefix, the
// OData /Date(ms)/ wrapper, and finally anything RFC3339-parseable.
func ParseSourceDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if len(s) >= len(ISO) {
		if t, err := time.Parse(ISO, s[:len(ISO)]); err == nil {
			return t, true
		}
	}
	if strings.HasPrefix(s, "/Date(") && strings.HasSuffix(s, ")/") {
		inner := s[len("/Date(") : len(s)-len(")/")]
		// Some feeds append a timezone offset after the epoch value.
		if i := strings.IndexAny(inner[1:], "+-"); i >= 0 {
			inner = inner[:i+1]
		}
		ms, err := strconv.ParseInt(inner, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return Midnight(time.UnixMilli(ms).UTC()), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Midnight(t.UTC()), true
	}
	return time.Time{}, false
}
