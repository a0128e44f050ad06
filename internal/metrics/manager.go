package metrics

import (
	"runtime"
	"time"
)

// Manager owns the Prometheus metrics and keeps the process-level gauges
// fresh. One instance is created at startup and shared by every component.
type Manager struct {
	prometheus *PrometheusMetrics
	startTime  time.Time
}

// NewManager creates a new metrics manager
func NewManager() *Manager {
	return &Manager{
		prometheus: NewPrometheusMetrics(),
		startTime:  time.Now(),
	}
}

// GetPrometheusMetrics returns the Prometheus metrics instance
func (m *Manager) GetPrometheusMetrics() *PrometheusMetrics {
	return m.prometheus
}

// Uptime returns how long the process has been running
func (m *Manager) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// UpdateSystemMetrics refreshes memory, goroutine and uptime gauges
func (m *Manager) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.prometheus.UpdateMemoryUsage(memStats.Alloc)
	m.prometheus.UpdateGoroutineCount(runtime.NumGoroutine())
	m.prometheus.UpdateApplicationUptime(m.startTime)
}
