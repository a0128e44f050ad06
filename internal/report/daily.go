// File: internal/report/daily.go
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/internal/notification"
	"github.com/artematbio/bio-whale-monitor/internal/storage"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

// DailyReporter sends a summary of the last 24 hours of stored activity
// once per day at a configured UTC hour.
type DailyReporter struct {
	config   *config.ReportConfig
	storage  storage.Storage
	notifier notification.Notifier
	logger   *logrus.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDailyReporter creates a new daily reporter
func NewDailyReporter(cfg *config.ReportConfig, store storage.Storage, notifier notification.Notifier) *DailyReporter {
	return &DailyReporter{
		config:   cfg,
		storage:  store,
		notifier: notifier,
		logger:   utils.GetLogger(),
		stopChan: make(chan struct{}),
	}
}

// Start launches the report loop
func (r *DailyReporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Daily reporter already running", "")
	}
	if !r.config.Enabled {
		r.logger.Info("Daily report disabled")
		return nil
	}

	r.running = true
	r.wg.Add(1)
	go r.runLoop(ctx)

	r.logger.WithField("hour_utc", r.config.HourUTC).Info("Daily reporter started")
	return nil
}

// Stop stops the report loop
func (r *DailyReporter) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
	r.logger.Info("Daily reporter stopped")
	return nil
}

func (r *DailyReporter) runLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		next := r.nextReportTime(time.Now().UTC())
		select {
		case <-time.After(time.Until(next)):
			if err := r.SendReport(ctx); err != nil {
				r.logger.WithField("error", err).Error("Failed to send daily report")
			}
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// nextReportTime computes the next report instant after now
func (r *DailyReporter) nextReportTime(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), r.config.HourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// SendReport builds and delivers the summary for the last 24 hours
func (r *DailyReporter) SendReport(ctx context.Context) error {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)

	summary, err := r.storage.GetDailySummary(ctx, from, to)
	if err != nil {
		return err
	}

	msg := &notification.Message{
		Subject:  "Daily treasury activity report",
		Text:     formatSummary(summary),
		Severity: models.SeverityInfo,
		Markdown: true,
	}
	if err := r.notifier.Send(ctx, msg); err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"events": summary.TotalEvents,
		"alerts": summary.TotalAlerts,
	}).Info("Daily report sent")
	return nil
}

// formatSummary renders the daily summary in Telegram Markdown
func formatSummary(s *models.DailySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\U0001F4CA *Daily Treasury Report*\n")
	fmt.Fprintf(&b, "_%s to %s_\n\n", s.From.Format("Jan 2 15:04"), s.To.Format("Jan 2 15:04 UTC"))
	fmt.Fprintf(&b, "*Events:* %d\n", s.TotalEvents)
	fmt.Fprintf(&b, "*Alerts:* %d", s.TotalAlerts)
	if s.FailedAlerts > 0 {
		fmt.Fprintf(&b, " (%d failed)", s.FailedAlerts)
	}
	fmt.Fprintf(&b, "\n*Total moved:* $%s\n", s.TotalUSDMoved.StringFixed(2))

	if len(s.EventsByDAO) > 0 {
		fmt.Fprintf(&b, "\n*By DAO:*\n")
		daos := make([]string, 0, len(s.EventsByDAO))
		for dao := range s.EventsByDAO {
			daos = append(daos, dao)
		}
		sort.Strings(daos)
		for _, dao := range daos {
			fmt.Fprintf(&b, "  %s: %d events", dao, s.EventsByDAO[dao])
			if usd, ok := s.USDByDAO[dao]; ok && usd.IsPositive() {
				fmt.Fprintf(&b, " ($%s)", usd.StringFixed(2))
			}
			b.WriteString("\n")
		}
	}

	if s.TotalEvents == 0 {
		b.WriteString("\nNo treasury activity in the last 24 hours.")
	}
	return b.String()
}
