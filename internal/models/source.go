package models

import (
	"sort"
	"strconv"
	"strings"
)

// SourceRow is one externally supplied delivery record: a report
// date, an impression count and a cost value, plus whatever join-key
// column the source exposes. Columns vary per deployment so the row
// is a plain field bag.
type SourceRow struct {
	Fields map[string]string `json:"fields"`
}

// Field returns a trimmed field value by column name.
func (r SourceRow) Field(column string) string {
	return strings.TrimSpace(r.Fields[column])
}

// SourceColumns returns the sorted union of column names appearing in
// rows. Sorting keeps column auto-detection deterministic regardless
// of map iteration order.
func SourceColumns(rows []SourceRow) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for k := range r.Fields {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// ParseCount parses an impression-style count, tolerating grouped
// digits ("1,234") and decimal notation. Returns false on garbage.
func ParseCount(s string) (int64, bool) {
	f, ok := ParseAmount(s)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// ParseAmount parses a cost-style number, tolerating grouped digits
// and surrounding whitespace. Returns false on garbage; callers treat
// unparseable money as zero so NaN never reaches a summed total.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != f {
		return 0, false
	}
	return f, true
}

// JoinConfig names which column on each side holds the
// insertion-order identifier. Empty fields fall back to auto
// detection.
type JoinConfig struct {
	CampaignColumn string `json:"campaign_column,omitempty"`
	SourceColumn   string `json:"source_column,omitempty"`
}
