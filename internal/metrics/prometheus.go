package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the whale monitor
type PrometheusMetrics struct {
	// Poll cycle metrics
	PollCyclesTotal   *prometheus.CounterVec
	PollCycleDuration *prometheus.HistogramVec
	CursorBlock       *prometheus.GaugeVec
	PairFailures      *prometheus.GaugeVec

	// Event pipeline metrics
	EventsObservedTotal  *prometheus.CounterVec
	EventsInsertedTotal  *prometheus.CounterVec
	EventsDuplicateTotal *prometheus.CounterVec

	// Alert metrics
	AlertsClaimedTotal *prometheus.CounterVec
	AlertsSentTotal    *prometheus.CounterVec
	AlertsFailedTotal  *prometheus.CounterVec
	AlertDeliveryTime  *prometheus.HistogramVec

	// Price metrics
	PriceLookupsTotal *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	GoroutineCount    prometheus.Gauge
	MemoryUsage       prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		PollCyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whale_monitor_poll_cycles_total",
				Help: "Total number of poll cycles per monitored pair",
			},
			[]string{"chain", "address", "status"},
		),

		PollCycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whale_monitor_poll_cycle_duration_seconds",
				Help:    "Duration of poll cycles",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"chain"},
		),

		CursorBlock: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "whale_monitor_cursor_block",
				Help: "Current poll cursor watermark per monitored pair",
			},
			[]string{"chain", "address"},
		),

		PairFailures: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "whale_monitor_pair_consecutive_failures",
				Help: "Consecutive poll failures per monitored pair",
			},
			[]string{"chain", "address"},
		),

		EventsObservedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whale_monitor_events_observed_total",
				Help: "Total raw events returned by chain adapters",
			},
			[]string{"chain"},
		),

		EventsInsertedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whale_monitor_events_inserted_total",
				Help: "Total events newly inserted into storage",
			},
			[]string{"chain", "token"},
		),

		EventsDuplicateTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whale_monitor_events_duplicate_total",
				Help: "Total events dropped as duplicates of stored events",
			},
			[]string{"chain"},
		),

		AlertsClaimedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whale_monitor_alerts_claimed_total",
				Help: "Total alert claims won",
			},
			[]string{"severity"},
		),

		AlertsSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whale_monitor_alerts_sent_total",
				Help: "Total alerts delivered",
			},
			[]string{"severity"},
		),

		AlertsFailedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whale_monitor_alerts_failed_total",
				Help: "Total alerts that exhausted delivery retries",
			},
			[]string{"severity"},
		),

		AlertDeliveryTime: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whale_monitor_alert_delivery_seconds",
				Help:    "Time from alert claim to delivery",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"severity"},
		),

		PriceLookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whale_monitor_price_lookups_total",
				Help: "Total token price lookups",
			},
			[]string{"token", "status"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whale_monitor_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whale_monitor_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "whale_monitor_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "whale_monitor_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "whale_monitor_goroutines",
				Help: "Number of running goroutines",
			},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "whale_monitor_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),
	}
}

// RecordPollCycle records one completed poll cycle
func (m *PrometheusMetrics) RecordPollCycle(chain, address, status string, duration time.Duration) {
	m.PollCyclesTotal.WithLabelValues(chain, address, status).Inc()
	m.PollCycleDuration.WithLabelValues(chain).Observe(duration.Seconds())
}

// UpdateCursor updates the watermark gauge for a pair
func (m *PrometheusMetrics) UpdateCursor(chain, address string, block uint64) {
	m.CursorBlock.WithLabelValues(chain, address).Set(float64(block))
}

// UpdatePairFailures updates the consecutive failure gauge for a pair
func (m *PrometheusMetrics) UpdatePairFailures(chain, address string, failures int) {
	m.PairFailures.WithLabelValues(chain, address).Set(float64(failures))
}

// RecordEventsObserved records raw events returned by an adapter
func (m *PrometheusMetrics) RecordEventsObserved(chain string, count int) {
	m.EventsObservedTotal.WithLabelValues(chain).Add(float64(count))
}

// RecordEventInserted records one newly stored event
func (m *PrometheusMetrics) RecordEventInserted(chain, token string) {
	m.EventsInsertedTotal.WithLabelValues(chain, token).Inc()
}

// RecordEventDuplicate records one event dropped by dedup
func (m *PrometheusMetrics) RecordEventDuplicate(chain string) {
	m.EventsDuplicateTotal.WithLabelValues(chain).Inc()
}

// RecordAlertClaimed records one won alert claim
func (m *PrometheusMetrics) RecordAlertClaimed(severity string) {
	m.AlertsClaimedTotal.WithLabelValues(severity).Inc()
}

// RecordAlertSent records one delivered alert
func (m *PrometheusMetrics) RecordAlertSent(severity string, duration time.Duration) {
	m.AlertsSentTotal.WithLabelValues(severity).Inc()
	m.AlertDeliveryTime.WithLabelValues(severity).Observe(duration.Seconds())
}

// RecordAlertFailed records one terminally failed alert
func (m *PrometheusMetrics) RecordAlertFailed(severity string) {
	m.AlertsFailedTotal.WithLabelValues(severity).Inc()
}

// RecordPriceLookup records one price lookup outcome
func (m *PrometheusMetrics) RecordPriceLookup(token, status string) {
	m.PriceLookupsTotal.WithLabelValues(token, status).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}
