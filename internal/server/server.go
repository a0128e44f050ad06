// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/metrics"
	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/internal/notification"
	"github.com/artematbio/bio-whale-monitor/internal/report"
	"github.com/artematbio/bio-whale-monitor/internal/scheduler"
	"github.com/artematbio/bio-whale-monitor/internal/storage"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

// HTTPServer exposes health, stats and operator endpoints
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	scheduler      *scheduler.Scheduler
	notification   notification.Notifier
	reporter       *report.DailyReporter
	metricsManager *metrics.Manager
	logger         *logrus.Logger
	version        string
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	cfg *config.ServerConfig,
	store storage.Storage,
	sched *scheduler.Scheduler,
	notifier notification.Notifier,
	reporter *report.DailyReporter,
	metricsManager *metrics.Manager,
	version string,
) (*HTTPServer, error) {

	server := &HTTPServer{
		config:         cfg,
		storage:        store,
		scheduler:      sched,
		notification:   notifier,
		reporter:       reporter,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
		version:        version,
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/pairs", s.pairHealthHandler).Methods("GET")
	}

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	api.HandleFunc("/events", s.listEventsHandler).Methods("GET")
	api.HandleFunc("/events/{id}", s.getEventHandler).Methods("GET")

	api.HandleFunc("/alerts", s.listAlertsHandler).Methods("GET")

	api.HandleFunc("/cursors", s.listCursorsHandler).Methods("GET")
	api.HandleFunc("/cursors/reset", s.resetCursorHandler).Methods("POST")

	api.HandleFunc("/report", s.sendReportHandler).Methods("POST")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.metricsManager.UpdateSystemMetrics()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithField("error", err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Surface immediate binding errors to the caller.
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system and component metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metricsManager.UpdateSystemMetrics()

		pm := s.metricsManager.GetPrometheusMetrics()
		pm.UpdateComponentHealth("storage", s.storage.Ping() == nil)
		if s.scheduler != nil {
			pm.UpdateComponentHealth("scheduler", s.scheduler.IsRunning())
		}
		if s.notification != nil {
			pm.UpdateComponentHealth("notification", s.notification.IsHealthy())
		}
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.WithFields(logrus.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"duration":  time.Since(start),
			"remote_ip": r.RemoteAddr,
		}).Debug("HTTP request")
	})
}

// healthHandler returns overall process health. Degrades to 503 when
// storage is unreachable or the scheduler has stopped.
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthy := s.storage.Ping() == nil
	if s.scheduler != nil && !s.scheduler.IsRunning() {
		healthy = false
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"version":   s.version,
	})
}

// pairHealthHandler returns per-pair poll health
func (s *HTTPServer) pairHealthHandler(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.scheduler.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve pair health", err)
		return
	}

	allHealthy := true
	for _, p := range pairs {
		if !p.Healthy {
			allHealthy = false
			break
		}
	}

	code := http.StatusOK
	if !allHealthy {
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"healthy":   allHealthy,
		"pairs":     pairs,
		"timestamp": time.Now().UTC(),
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	stats := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"storage":   storageStats,
	}
	if s.metricsManager != nil {
		stats["uptime_seconds"] = int64(s.metricsManager.Uptime().Seconds())
	}
	if s.scheduler != nil {
		stats["scheduler"] = s.scheduler.GetStats()
	}
	if s.notification != nil {
		stats["notification"] = s.notification.GetStats()
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// listEventsHandler lists stored events
func (s *HTTPServer) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	filter := models.EventFilter{Limit: 50}

	q := r.URL.Query()
	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			filter.Limit = l
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o > 0 {
			filter.Offset = o
		}
	}
	if chainStr := q.Get("chain"); chainStr != "" {
		chain := models.Chain(chainStr)
		filter.Chain = &chain
	}
	if dao := q.Get("dao"); dao != "" {
		filter.DAOName = &dao
	}
	if token := q.Get("token"); token != "" {
		filter.TokenSymbol = &token
	}

	events, err := s.storage.GetEvents(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve events", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"limit":  filter.Limit,
		"offset": filter.Offset,
		"total":  len(events),
	})
}

// getEventHandler gets a specific event by ID
func (s *HTTPServer) getEventHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	event, err := s.storage.GetEvent(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve event", err)
		return
	}
	if event == nil {
		s.writeError(w, http.StatusNotFound, "Event not found", nil)
		return
	}

	response := map[string]interface{}{"event": event}
	if alert, err := s.storage.GetAlertByEventID(r.Context(), id); err == nil && alert != nil {
		response["alert"] = alert
	}

	s.writeJSON(w, http.StatusOK, response)
}

// listAlertsHandler lists alerts by delivery status
func (s *HTTPServer) listAlertsHandler(w http.ResponseWriter, r *http.Request) {
	status := models.DeliveryStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.DeliveryStatusSent
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	alerts, err := s.storage.GetAlertsByStatus(r.Context(), status, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve alerts", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"status": status,
		"total":  len(alerts),
	})
}

// listCursorsHandler lists poll cursors
func (s *HTTPServer) listCursorsHandler(w http.ResponseWriter, r *http.Request) {
	cursors, err := s.storage.GetCursors(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve cursors", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cursors": cursors,
		"total":   len(cursors),
	})
}

// resetCursorHandler is the operator override for a pair's watermark
func (s *HTTPServer) resetCursorHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Chain   string `json:"chain"`
		Address string `json:"address"`
		Block   uint64 `json:"block"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if request.Chain == "" || request.Address == "" {
		s.writeError(w, http.StatusBadRequest, "Chain and address are required", nil)
		return
	}

	if err := s.storage.ResetCursor(r.Context(), models.Chain(request.Chain), request.Address, request.Block); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to reset cursor", err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"chain":   request.Chain,
		"address": request.Address,
		"block":   request.Block,
	}).Warn("Poll cursor reset by operator")

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Cursor reset successfully",
		"chain":   request.Chain,
		"address": request.Address,
		"block":   request.Block,
	})
}

// sendReportHandler triggers an immediate daily report
func (s *HTTPServer) sendReportHandler(w http.ResponseWriter, r *http.Request) {
	if s.reporter == nil {
		s.writeError(w, http.StatusConflict, "Daily reporter is not configured", nil)
		return
	}

	if err := s.reporter.SendReport(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to send report", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Report sent successfully",
	})
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithField("error", err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().UTC(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
