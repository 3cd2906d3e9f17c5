package models

// MonitorRow is one aggregate keyed by a time bucket (YYYY-MM,
// YYYY-Qn or YYYY). Monetary fields are rounded to 2 decimal places
// after summation; see monitor.round2.
type MonitorRow struct {
	Bucket string `json:"bucket"`

	SumImpressions      int64 `json:"sum_impressions"`
	ActiveCampaignCount int64 `json:"active_campaign_count"`
	DataImpressions     int64 `json:"data_impressions"`
	DeliveredLines      int64 `json:"delivered_lines"`

	MediaCost     float64 `json:"media_cost"`
	MediaFees     float64 `json:"media_fees"`
	CeltraCost    float64 `json:"celtra_cost"`
	TotalCost     float64 `json:"total_cost"`
	BookedRevenue float64 `json:"booked_revenue"`
}
