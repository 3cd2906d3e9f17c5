package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/caliperdev/campaignmanager/internal/dateutil"
)

type DistributionMode string

const (
	DistributionEven   DistributionMode = "even"
	DistributionCustom DistributionMode = "custom"
)

// Date is a calendar date carried over the wire as YYYY-MM-DD. It
// accepts RFC3339 input as well since older clients post timestamps.
type Date struct {
	time.Time
}

// NewDate builds a Date at UTC midnight.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.Format(dateutil.ISO) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(dateutil.ISO, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q", s)
	}
	d.Time = dateutil.Midnight(t.UTC())
	return nil
}

// Range is a sub-interval of a campaign flight. A dark range
// contributes zero impressions; a goal range spreads ImpressionsGoal
// evenly over its days with the remainder on its last day.
type Range struct {
	StartDate       Date   `json:"start_date"`
	EndDate         Date   `json:"end_date"`
	IsDark          bool   `json:"is_dark,omitempty"`
	ImpressionsGoal *int64 `json:"impressions_goal,omitempty"`
}

// Goal returns the range's impression goal, zero when unset or dark.
func (r Range) Goal() int64 {
	if r.IsDark || r.ImpressionsGoal == nil {
		return 0
	}
	return *r.ImpressionsGoal
}

// Campaign is a flighted advertising line. CSVData is the free-form
// attribute bag carried over from whatever columns the deployment's
// import files contain; CSVColumns preserves their order.
type Campaign struct {
	ID               int64             `json:"id"`
	DatasetID        string            `json:"dataset_id,omitempty"`
	Name             string            `json:"name"`
	StartDate        Date              `json:"start_date"`
	EndDate          Date              `json:"end_date"`
	ImpressionsGoal  int64             `json:"impressions_goal"`
	DistributionMode DistributionMode  `json:"distribution_mode"`
	CustomRanges     []Range           `json:"custom_ranges,omitempty"`
	CSVData          map[string]string `json:"csv_data,omitempty"`
	CSVColumns       []string          `json:"csv_columns,omitempty"`
	Notes            map[string]string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Field returns a trimmed CSV attribute value by column name.
func (c *Campaign) Field(column string) string {
	return strings.TrimSpace(c.CSVData[column])
}

// Columns returns the campaign's attribute column names in import
// order, falling back to sorted bag keys when no order was recorded.
func (c *Campaign) Columns() []string {
	if len(c.CSVColumns) > 0 {
		return c.CSVColumns
	}
	cols := make([]string, 0, len(c.CSVData))
	for k := range c.CSVData {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Validate checks the invariants that must hold before a campaign is
// saved. Allocation itself never rejects a campaign; batch paths skip
// invalid ones instead.
func (c *Campaign) Validate() error {
	if c.ID <= 0 {
		return errors.New("id is required")
	}
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return errors.New("start_date and end_date are required")
	}
	if c.EndDate.Before(c.StartDate.Time) {
		return fmt.Errorf("start_date %s is after end_date %s",
			c.StartDate.Format(dateutil.ISO), c.EndDate.Format(dateutil.ISO))
	}
	if c.ImpressionsGoal < 0 {
		return fmt.Errorf("impressions_goal must be >= 0, got %d", c.ImpressionsGoal)
	}
	switch c.DistributionMode {
	case DistributionEven, DistributionCustom, "":
	default:
		return fmt.Errorf("unknown distribution_mode %q", c.DistributionMode)
	}
	if c.DistributionMode == DistributionCustom {
		for i, r := range c.CustomRanges {
			if r.StartDate.IsZero() || r.EndDate.IsZero() {
				return fmt.Errorf("range %d: start_date and end_date are required", i)
			}
			if r.EndDate.Before(r.StartDate.Time) {
				return fmt.Errorf("range %d: start_date after end_date", i)
			}
			if r.StartDate.Before(c.StartDate.Time) || r.EndDate.After(c.EndDate.Time) {
				return fmt.Errorf("range %d: outside campaign flight", i)
			}
			if !r.IsDark && r.ImpressionsGoal != nil && *r.ImpressionsGoal < 0 {
				return fmt.Errorf("range %d: impressions_goal must be >= 0", i)
			}
		}
	}
	return nil
}

// FlightValid reports whether the campaign can be allocated at all.
// Batch paths (export, aggregation) use this to skip malformed rows
// without aborting the whole run.
func (c *Campaign) FlightValid() bool {
	return !c.StartDate.IsZero() && !c.EndDate.IsZero() &&
		!c.EndDate.Before(c.StartDate.Time) && c.ImpressionsGoal >= 0
}

// InFlight reports whether day falls inside the campaign's flight.
func (c *Campaign) InFlight(day time.Time) bool {
	d := dateutil.Midnight(day)
	return !d.Before(dateutil.Midnight(c.StartDate.Time)) &&
		!d.After(dateutil.Midnight(c.EndDate.Time))
}

// DetectOverlap runs the pairwise interval overlap test over the
// ranges and returns the first offending pair. Overlap is a blocking
// validation error before save; the allocation engine itself lets the
// later range win.
func DetectOverlap(ranges []Range) (int, int, bool) {
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			a, b := ranges[i], ranges[j]
			if !a.StartDate.After(b.EndDate.Time) && !b.StartDate.After(a.EndDate.Time) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// OverAllocation returns how far the summed custom range goals exceed
// the campaign goal, or zero when they fit.
func OverAllocation(c *Campaign) int64 {
	if c.DistributionMode != DistributionCustom {
		return 0
	}
	var total int64
	for _, r := range c.CustomRanges {
		total += r.Goal()
	}
	if total > c.ImpressionsGoal {
		return total - c.ImpressionsGoal
	}
	return 0
}
