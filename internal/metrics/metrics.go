package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the campaign manager.
type Metrics struct {
	// Aggregation / refresh metrics
	RefreshRuns     *prometheus.CounterVec
	RefreshDuration *prometheus.HistogramVec
	MonitorRows     prometheus.Gauge

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Export metrics
	ExportRows *prometheus.CounterVec

	// Campaign metrics
	CampaignsSaved  prometheus.Counter
	ActiveCampaigns prometheus.Gauge

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		RefreshRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_runs_total",
				Help:      "Monitor refresh runs by mode and outcome",
			},
			[]string{"mode", "status"},
		),
		RefreshDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Monitor refresh duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"mode"},
		),
		MonitorRows: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "monitor_rows",
				Help:      "Row count of the most recent aggregation",
			},
		),
		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "monitor_cache_hits_total",
				Help:      "Monitor cache hits",
			},
		),
		CacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "monitor_cache_misses_total",
				Help:      "Monitor cache misses (including forced refreshes)",
			},
		),
		ExportRows: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_rows_total",
				Help:      "Exported CSV data rows by format",
			},
			[]string{"format"},
		),
		CampaignsSaved: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "campaigns_saved_total",
				Help:      "Campaign upserts",
			},
		),
		ActiveCampaigns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_campaigns",
				Help:      "Number of campaigns in the default dataset",
			},
		),
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRefresh records one refresh run.
func (m *Metrics) RecordRefresh(mode, status string, d time.Duration) {
	m.RefreshRuns.WithLabelValues(mode, status).Inc()
	m.RefreshDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordCacheHit records a monitor cache hit.
func (m *Metrics) RecordCacheHit() { m.CacheHits.Inc() }

// RecordCacheMiss records a monitor cache miss.
func (m *Metrics) RecordCacheMiss() { m.CacheMisses.Inc() }

// RecordExport records exported data rows for one format.
func (m *Metrics) RecordExport(format string, rows int) {
	m.ExportRows.WithLabelValues(format).Add(float64(rows))
}

// RecordCampaignSaved records a campaign upsert.
func (m *Metrics) RecordCampaignSaved() { m.CampaignsSaved.Inc() }

// SetMonitorRows records the size of the latest aggregation.
func (m *Metrics) SetMonitorRows(n int) { m.MonitorRows.Set(float64(n)) }

// SetActiveCampaigns records the current campaign count.
func (m *Metrics) SetActiveCampaigns(n int) { m.ActiveCampaigns.Set(float64(n)) }

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}
