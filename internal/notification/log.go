// File: internal/notification/log.go
package notification

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

// LogSender writes messages to the structured log. It is the always-on
// fallback channel and never fails.
type LogSender struct {
	logger *logrus.Logger
}

// NewLogSender creates a new log sender
func NewLogSender() *LogSender {
	return &LogSender{logger: utils.GetLogger()}
}

// Name returns the channel name
func (ls *LogSender) Name() string {
	return "log"
}

// Send writes the message to the log at a level matching its severity
func (ls *LogSender) Send(ctx context.Context, msg *Message) error {
	entry := ls.logger.WithFields(logrus.Fields{
		"subject":  msg.Subject,
		"severity": msg.Severity,
	})

	switch msg.Severity {
	case "critical":
		entry.Error(msg.Text)
	case "warning":
		entry.Warn(msg.Text)
	default:
		entry.Info(msg.Text)
	}
	return nil
}
