// Package export renders allocation series as the two CSV shapes the
// dashboard offers for download. Both derive purely from the
// allocation engine; nothing here re-implements distribution math.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/caliperdev/campaignmanager/internal/allocation"
	"github.com/caliperdev/campaignmanager/internal/dateutil"
	"github.com/caliperdev/campaignmanager/internal/models"
)

// PivotAxisStart fixes the first date of the wide pivot's axis. This
// is a hard-coded product constant, not derived from data.
const PivotAxisStart = "2025-01-01"

// WritePivot renders the wide pivot: one column per campaign, one row
// per date in [PivotAxisStart, today]. Cells outside a campaign's
// flight are empty strings; zero means "in flight but dark or
// unallocated". Numbers are grouped with thousands separators.
//
// Campaigns that cannot be allocated (inverted flight, negative goal)
// are skipped, not fatal. Returns the number of data rows written,
// header excluded.
func WritePivot(w io.Writer, campaigns []*models.Campaign, today time.Time) (int, error) {
	axisStart, err := time.Parse(dateutil.ISO, PivotAxisStart)
	if err != nil {
		return 0, err
	}
	axis := dateutil.Days(axisStart, dateutil.Midnight(today))

	var kept []*models.Campaign
	for _, c := range campaigns {
		if c.FlightValid() {
			kept = append(kept, c)
		}
	}

	header := make([]string, 0, len(kept)+1)
	header = append(header, "Date")
	series := make([]allocation.Series, len(kept))
	for i, c := range kept {
		header = append(header, escapeField(c.Name))
		series[i] = allocation.Allocate(c.StartDate.Time, c.EndDate.Time,
			c.ImpressionsGoal, c.DistributionMode, c.CustomRanges)
	}
	if _, err := fmt.Fprintln(w, strings.Join(header, ",")); err != nil {
		return 0, err
	}

	written := 0
	cells := make([]string, len(kept)+1)
	for _, day := range axis {
		iso := day.Format(dateutil.ISO)
		cells[0] = iso
		for i, c := range kept {
			if c.InFlight(day) {
				cells[i+1] = escapeField(groupThousands(series[i][iso]))
			} else {
				cells[i+1] = ""
			}
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, ",")); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// WriteLong renders the long format: one row per (date, campaign)
// pair across the union of all flights, keyed by the insertion-order
// id column. The value cell is empty outside the campaign's flight
// and a plain (ungrouped) integer inside it, "0" included for dark
// days. Returns the number of data rows written, header excluded.
func WriteLong(w io.Writer, campaigns []*models.Campaign, keyColumn string) (int, error) {
	if _, err := fmt.Fprintln(w, "Date,Insertion Order ID,Daily Allocated Impressions Goal"); err != nil {
		return 0, err
	}

	var kept []*models.Campaign
	var lo, hi time.Time
	for _, c := range campaigns {
		if !c.FlightValid() {
			continue
		}
		kept = append(kept, c)
		s, e := dateutil.Midnight(c.StartDate.Time), dateutil.Midnight(c.EndDate.Time)
		if lo.IsZero() || s.Before(lo) {
			lo = s
		}
		if hi.IsZero() || e.After(hi) {
			hi = e
		}
	}
	if len(kept) == 0 {
		return 0, nil
	}

	series := make([]allocation.Series, len(kept))
	keys := make([]string, len(kept))
	for i, c := range kept {
		series[i] = allocation.Allocate(c.StartDate.Time, c.EndDate.Time,
			c.ImpressionsGoal, c.DistributionMode, c.CustomRanges)
		keys[i] = c.Field(keyColumn)
		if keys[i] == "" {
			keys[i] = strconv.FormatInt(c.ID, 10)
		}
	}

	written := 0
	for _, day := range dateutil.Days(lo, hi) {
		iso := day.Format(dateutil.ISO)
		for i, c := range kept {
			value := ""
			if c.InFlight(day) {
				value = strconv.FormatInt(series[i][iso], 10)
			}
			row := iso + "," + escapeField(keys[i]) + "," + value
			if _, err := fmt.Fprintln(w, row); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, nil
}

// escapeField quotes a CSV field only when it contains a comma,
// double quote or newline; internal quotes are doubled.
func escapeField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// groupThousands formats n with comma thousands separators. Grouping
// is fixed, not locale-driven, so exports are byte-stable across
// deployments.
func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) > 3 {
		var b strings.Builder
		lead := len(s) % 3
		if lead > 0 {
			b.WriteString(s[:lead])
		}
		for i := lead; i < len(s); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(s[i : i+3])
		}
		s = b.String()
	}
	if neg {
		s = "-" + s
	}
	return s
}
