// File: internal/notification/notification.go
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

// Message is one formatted notification ready for delivery
type Message struct {
	Subject  string          `json:"subject"`
	Text     string          `json:"text"`
	Severity models.Severity `json:"severity"`
	// Markdown marks Text as Telegram-style Markdown; channels that do not
	// support it deliver the text verbatim.
	Markdown bool `json:"markdown"`
}

// Sender delivers a message over one channel. Send errors carry the error
// taxonomy: connection and external errors are retryable, validation errors
// are permanent.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// Notifier is the delivery interface the dispatcher and the daily report use
type Notifier interface {
	Start(ctx context.Context) error
	Stop() error
	IsHealthy() bool

	// Send fans the message out to all enabled channels. Delivery succeeds
	// when at least one external channel accepts the message; the log
	// channel satisfies delivery only when it is the sole channel.
	Send(ctx context.Context, msg *Message) error

	GetStats() *NotificationStats
}

// NotificationStats provides notification statistics
type NotificationStats struct {
	TotalSent     uint64            `json:"total_sent"`
	TotalFailed   uint64            `json:"total_failed"`
	SentByChannel map[string]uint64 `json:"sent_by_channel"`
	LastError     *string           `json:"last_error,omitempty"`
	LastErrorTime *time.Time        `json:"last_error_time,omitempty"`
}

// NotificationManager implements the Notifier interface
type NotificationManager struct {
	config  *config.NotificationConfig
	logger  *logrus.Logger
	senders []Sender

	mu      sync.RWMutex
	running bool
	stats   *NotificationStats
}

// NewNotificationManager creates a manager with channels built from
// configuration. The log channel is always present so alerts are never
// silently dropped when no external channel is configured.
func NewNotificationManager(cfg *config.NotificationConfig) *NotificationManager {
	nm := &NotificationManager{
		config: cfg,
		logger: utils.GetLogger(),
		stats: &NotificationStats{
			SentByChannel: make(map[string]uint64),
		},
	}

	nm.senders = append(nm.senders, NewLogSender())
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		nm.senders = append(nm.senders, NewTelegramSender(&cfg.Telegram, cfg.NotificationTimeout))
	}
	if cfg.Discord.Enabled && cfg.Discord.WebhookURL != "" {
		nm.senders = append(nm.senders, NewDiscordSender(&cfg.Discord, cfg.NotificationTimeout))
	}

	return nm
}

// Start starts the notification manager
func (nm *NotificationManager) Start(ctx context.Context) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Notification manager already running", "")
	}

	channels := make([]string, 0, len(nm.senders))
	for _, s := range nm.senders {
		channels = append(channels, s.Name())
	}
	nm.logger.WithField("channels", channels).Info("Notification manager started")
	nm.running = true
	return nil
}

// Stop stops the notification manager
func (nm *NotificationManager) Stop() error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if !nm.running {
		return nil
	}
	nm.running = false
	nm.logger.Info("Notification manager stopped")
	return nil
}

// IsHealthy returns whether the notification manager is running
func (nm *NotificationManager) IsHealthy() bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.running
}

// Send fans the message out to all enabled channels
func (nm *NotificationManager) Send(ctx context.Context, msg *Message) error {
	if !nm.config.Enabled {
		return nil
	}

	sendCtx := ctx
	if nm.config.NotificationTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, nm.config.NotificationTimeout)
		defer cancel()
	}

	var lastErr error
	delivered := 0
	external := 0
	externalDelivered := 0

	for _, sender := range nm.senders {
		_, isLog := sender.(*LogSender)
		if !isLog {
			external++
		}

		if err := sender.Send(sendCtx, msg); err != nil {
			lastErr = err
			nm.logger.WithFields(logrus.Fields{
				"channel": sender.Name(),
				"error":   err,
			}).Warn("Notification channel delivery failed")
			continue
		}
		delivered++
		if !isLog {
			externalDelivered++
		}
		nm.recordSent(sender.Name())
	}

	// The log channel cannot fail, so when external channels are configured
	// only they count as delivery. Otherwise a total Telegram and Discord
	// outage would still mark the alert sent.
	if external > 0 && externalDelivered == 0 {
		nm.recordFailure(lastErr)
		return lastErr
	}
	if delivered == 0 {
		nm.recordFailure(lastErr)
		return lastErr
	}
	return nil
}

// GetStats returns notification statistics
func (nm *NotificationManager) GetStats() *NotificationStats {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	stats := &NotificationStats{
		TotalSent:     nm.stats.TotalSent,
		TotalFailed:   nm.stats.TotalFailed,
		SentByChannel: make(map[string]uint64, len(nm.stats.SentByChannel)),
		LastError:     nm.stats.LastError,
		LastErrorTime: nm.stats.LastErrorTime,
	}
	for k, v := range nm.stats.SentByChannel {
		stats.SentByChannel[k] = v
	}
	return stats
}

func (nm *NotificationManager) recordSent(channel string) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.stats.TotalSent++
	nm.stats.SentByChannel[channel]++
}

func (nm *NotificationManager) recordFailure(err error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.stats.TotalFailed++
	if err != nil {
		errStr := err.Error()
		now := time.Now()
		nm.stats.LastError = &errStr
		nm.stats.LastErrorTime = &now
	}
}
