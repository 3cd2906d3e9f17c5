// Package monitor aggregates booked and delivered impression series
// into the monthly, quarterly, yearly and per-dimension rows the
// monitoring views and exports render.
package monitor

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/caliperdev/campaignmanager/internal/dateutil"
	"github.com/caliperdev/campaignmanager/internal/models"
)

// Granularity selects the time bucket for rollups.
type Granularity string

const (
	GranularityYearMonth Granularity = "yearMonth"
	GranularityQuarter   Granularity = "quarter"
	GranularityYear      Granularity = "year"
)

// ParseGranularity validates a caller-supplied granularity, defaulting
// to yearMonth for the empty string.
func ParseGranularity(s string) (Granularity, bool) {
	switch Granularity(s) {
	case GranularityYearMonth, "":
		return GranularityYearMonth, true
	case GranularityQuarter:
		return GranularityQuarter, true
	case GranularityYear:
		return GranularityYear, true
	}
	return "", false
}

// BlankDimension is the bucket that empty or missing dimension values
// collapse into.
const BlankDimension = "(blank)"

// RollupByTime regroups monthly rows into the requested granularity,
// summing every numeric field per bucket. Output is sorted ascending
// by bucket key, which is chronological for all three key formats.
// Monetary fields are re-rounded after summation.
func RollupByTime(rows []models.MonitorRow, g Granularity) []models.MonitorRow {
	grouped := make(map[string]*models.MonitorRow)
	for _, row := range rows {
		key := bucketKey(row.Bucket, g)
		agg, ok := grouped[key]
		if !ok {
			agg = &models.MonitorRow{Bucket: key}
			grouped[key] = agg
		}
		agg.SumImpressions += row.SumImpressions
		agg.ActiveCampaignCount += row.ActiveCampaignCount
		agg.DataImpressions += row.DataImpressions
		agg.DeliveredLines += row.DeliveredLines
		agg.MediaCost += row.MediaCost
		agg.MediaFees += row.MediaFees
		agg.CeltraCost += row.CeltraCost
		agg.TotalCost += row.TotalCost
		agg.BookedRevenue += row.BookedRevenue
	}

	out := make([]models.MonitorRow, 0, len(grouped))
	for _, agg := range grouped {
		agg.MediaCost = round2(agg.MediaCost)
		agg.MediaFees = round2(agg.MediaFees)
		agg.CeltraCost = round2(agg.CeltraCost)
		agg.TotalCost = round2(agg.TotalCost)
		agg.BookedRevenue = round2(agg.BookedRevenue)
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out
}

func bucketKey(monthKey string, g Granularity) string {
	if g == GranularityYearMonth {
		return monthKey
	}
	t, ok := dateutil.ParseMonthKey(monthKey)
	if !ok {
		return monthKey
	}
	if g == GranularityQuarter {
		return dateutil.QuarterKey(t)
	}
	return dateutil.YearKey(t)
}

// CampaignMonthRow is one campaign's booked impressions for one
// month, the input shape for dimension grouping.
type CampaignMonthRow struct {
	CampaignID  int64  `json:"campaign_id"`
	Bucket      string `json:"bucket"`
	Impressions int64  `json:"impressions"`
}

// DimensionRow is an aggregate keyed by a dimension value such as an
// "Advertiser" column.
type DimensionRow struct {
	Value               string `json:"value"`
	SumImpressions      int64  `json:"sum_impressions"`
	ActiveCampaignCount int64  `json:"active_campaign_count"`
}

// RollupByDimension groups per-campaign monthly rows by the dimension
// value the lookup assigns to each campaign. Values are trimmed and
// blanks collapse into one "(blank)" bucket. Output is sorted by
// impression sum descending, dimension value ascending on ties.
func RollupByDimension(rows []CampaignMonthRow, lookup map[int64]string) []DimensionRow {
	sums := make(map[string]int64)
	campaigns := make(map[string]map[int64]struct{})
	for _, row := range rows {
		value := strings.TrimSpace(lookup[row.CampaignID])
		if value == "" {
			value = BlankDimension
		}
		sums[value] += row.Impressions
		if campaigns[value] == nil {
			campaigns[value] = make(map[int64]struct{})
		}
		campaigns[value][row.CampaignID] = struct{}{}
	}

	out := make([]DimensionRow, 0, len(sums))
	for value, sum := range sums {
		out = append(out, DimensionRow{
			Value:               value,
			SumImpressions:      sum,
			ActiveCampaignCount: int64(len(campaigns[value])),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SumImpressions != out[j].SumImpressions {
			return out[i].SumImpressions > out[j].SumImpressions
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// Derive computes the render-time margin fields for a row: booked
// revenue versus total cost, and the margin percentage.
func Derive(row models.MonitorRow) (revVsCost, marginPct float64) {
	revVsCost = round2(row.BookedRevenue - row.TotalCost)
	switch {
	case row.BookedRevenue > 0:
		marginPct = round2(100 * (row.BookedRevenue - row.TotalCost) / row.BookedRevenue)
	case row.TotalCost > 0:
		marginPct = -100
	default:
		marginPct = 0
	}
	return revVsCost, marginPct
}

// round2 rounds money to 2 decimal places after summation. Bad input
// (NaN, Inf) resolves to 0 so it can never poison a summed total.
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
