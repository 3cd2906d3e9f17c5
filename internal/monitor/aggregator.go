package monitor

import (
	"sort"

	"github.com/caliperdev/campaignmanager/internal/allocation"
	"github.com/caliperdev/campaignmanager/internal/dateutil"
	"github.com/caliperdev/campaignmanager/internal/models"
)

// AggregateInput carries everything the cross-source aggregation
// needs; the aggregator itself performs no I/O and no caching.
type AggregateInput struct {
	Campaigns  []*models.Campaign
	SourceRows []models.SourceRow
	Join       models.JoinConfig
}

type delivered struct {
	impressions int64
	mediaCost   float64
}

// Aggregate joins booked impressions (even-mode allocation per
// campaign) against delivered source rows by insertion-order key and
// returns one MonitorRow per month, sorted ascending.
//
// The campaign's own distribution mode is deliberately not consulted
// here: booked-by-month always treats the total goal as evenly spread
// over the flight. If no join key can be resolved on the campaign
// side, or source rows exist but lack a resolvable key/date/
// impressions/cost column, the result is empty rather than guessed.
func Aggregate(in AggregateInput, det *ColumnDetector) []models.MonitorRow {
	if det == nil {
		det = NewColumnDetector()
	}

	campaignCols := campaignColumns(in.Campaigns)
	keyCol := in.Join.CampaignColumn
	if keyCol == "" {
		keyCol, _ = det.Detect(campaignCols, JoinKeyCandidates)
	}
	if keyCol == "" {
		return []models.MonitorRow{}
	}
	celtraCol, _ := det.Detect(campaignCols, CPMCeltraCandidates)
	cpmCol, _ := det.DetectExcluding(campaignCols, CPMCandidates, celtraCol)

	var srcKeyCol, srcDateCol, srcImpsCol, srcCostCol string
	if len(in.SourceRows) > 0 {
		srcCols := models.SourceColumns(in.SourceRows)
		srcKeyCol = in.Join.SourceColumn
		if srcKeyCol == "" {
			srcKeyCol, _ = det.Detect(srcCols, JoinKeyCandidates)
		}
		srcDateCol, _ = det.Detect(srcCols, DateCandidates)
		srcImpsCol, _ = det.Detect(srcCols, ImpressionsCandidates)
		srcCostCol, _ = det.Detect(srcCols, CostCandidates)
		if srcKeyCol == "" || srcDateCol == "" || srcImpsCol == "" || srcCostCol == "" {
			return []models.MonitorRow{}
		}
	}

	// Booked impressions per join key per month. CPM fields are looked
	// up once per key, from the first campaign row carrying it.
	booked := make(map[string]map[string]int64)
	cpmByKey := make(map[string]float64)
	celtraByKey := make(map[string]float64)
	for _, c := range in.Campaigns {
		key := c.Field(keyCol)
		if key == "" || !c.FlightValid() {
			continue
		}
		series := allocation.AllocateEven(c.StartDate.Time, c.EndDate.Time, c.ImpressionsGoal)
		months := booked[key]
		if months == nil {
			months = make(map[string]int64)
			booked[key] = months
		}
		for iso, v := range series {
			months[iso[:7]] += v
		}
		if _, ok := cpmByKey[key]; !ok && cpmCol != "" {
			if v, ok := models.ParseAmount(c.Field(cpmCol)); ok {
				cpmByKey[key] = v
			}
		}
		if _, ok := celtraByKey[key]; !ok && celtraCol != "" {
			if v, ok := models.ParseAmount(c.Field(celtraCol)); ok {
				celtraByKey[key] = v
			}
		}
	}

	// Delivered impressions and media cost per month per join key.
	// Left-join semantics: rows whose key has no campaign are dropped,
	// as are rows whose date cannot be parsed.
	deliveredByMonth := make(map[string]map[string]*delivered)
	for _, row := range in.SourceRows {
		key := row.Field(srcKeyCol)
		if key == "" {
			continue
		}
		if _, ok := booked[key]; !ok {
			continue
		}
		t, ok := dateutil.ParseSourceDate(row.Field(srcDateCol))
		if !ok {
			continue
		}
		month := dateutil.MonthKey(t)
		keys := deliveredByMonth[month]
		if keys == nil {
			keys = make(map[string]*delivered)
			deliveredByMonth[month] = keys
		}
		d := keys[key]
		if d == nil {
			d = &delivered{}
			keys[key] = d
		}
		if v, ok := models.ParseCount(row.Field(srcImpsCol)); ok {
			d.impressions += v
		}
		if v, ok := models.ParseAmount(row.Field(srcCostCol)); ok {
			d.mediaCost += v
		}
	}

	months := monthUnion(booked, deliveredByMonth)

	var activeCount int64
	if len(booked) > 0 {
		// Collapses to 0/1 rather than a true per-month distinct count.
		// Historical reports depend on this value; do not "fix" it.
		activeCount = 1
	}

	out := make([]models.MonitorRow, 0, len(months))
	for _, month := range months {
		row := models.MonitorRow{Bucket: month, ActiveCampaignCount: activeCount}
		for _, key := range monthKeys(month, booked, deliveredByMonth) {
			bookedForKey := booked[key][month]
			var d delivered
			if dd := deliveredByMonth[month][key]; dd != nil {
				d = *dd
			}
			row.SumImpressions += bookedForKey
			row.DataImpressions += d.impressions
			row.MediaCost += d.mediaCost
			row.CeltraCost += float64(d.impressions) / 1000 * celtraByKey[key]
			row.BookedRevenue += float64(bookedForKey) / 1000 * cpmByKey[key]
			if d.impressions != 0 || bookedForKey != 0 {
				row.DeliveredLines++
			}
		}
		row.MediaCost = round2(row.MediaCost)
		row.CeltraCost = round2(row.CeltraCost)
		row.TotalCost = round2(row.MediaCost + row.CeltraCost)
		row.BookedRevenue = round2(row.BookedRevenue)
		out = append(out, row)
	}
	return out
}

func campaignColumns(campaigns []*models.Campaign) []string {
	var cols []string
	seen := make(map[string]struct{})
	for _, c := range campaigns {
		for _, col := range c.Columns() {
			if _, ok := seen[col]; !ok {
				seen[col] = struct{}{}
				cols = append(cols, col)
			}
		}
	}
	return cols
}

// monthUnion returns the sorted union of months carrying booked
// allocation and months carrying source activity.
func monthUnion(booked map[string]map[string]int64, deliveredByMonth map[string]map[string]*delivered) []string {
	seen := make(map[string]struct{})
	for _, months := range booked {
		for m := range months {
			seen[m] = struct{}{}
		}
	}
	for m := range deliveredByMonth {
		seen[m] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// monthKeys returns the sorted join keys active in a month, so that
// summation order (and therefore float rounding) is reproducible.
func monthKeys(month string, booked map[string]map[string]int64, deliveredByMonth map[string]map[string]*delivered) []string {
	seen := make(map[string]struct{})
	for key, months := range booked {
		if _, ok := months[month]; ok {
			seen[key] = struct{}{}
		}
	}
	for key := range deliveredByMonth[month] {
		seen[key] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
