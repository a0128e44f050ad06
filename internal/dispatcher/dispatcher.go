// File: internal/dispatcher/dispatcher.go
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/evaluator"
	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/internal/notification"
	"github.com/artematbio/bio-whale-monitor/internal/storage"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

// Dispatcher turns threshold-crossing events into delivered alerts. The
// alert claim in storage is the at-most-once gate: whichever caller claims
// the event_id first dispatches, everyone else drops out silently.
type Dispatcher struct {
	config   *config.NotificationConfig
	storage  storage.Storage
	notifier notification.Notifier
	logger   *logrus.Logger
}

// NewDispatcher creates a new alert dispatcher
func NewDispatcher(cfg *config.NotificationConfig, store storage.Storage, notifier notification.Notifier) *Dispatcher {
	return &Dispatcher{
		config:   cfg,
		storage:  store,
		notifier: notifier,
		logger:   utils.GetLogger(),
	}
}

// Dispatch claims and delivers the alert for one event. Returns true when
// this call performed the delivery, false when another claim already holds
// the event. Delivery failures after the claim leave the alert record in
// pending (reclaimable after the claim TTL) or failed (retries exhausted).
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.TransferEvent, verdict evaluator.Verdict) (bool, error) {
	claimed, alert, err := d.storage.TryClaimAlert(ctx, event.ID, verdict.Severity)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	d.logger.WithFields(logrus.Fields{
		"alert_id": alert.AlertID,
		"event_id": event.ID,
		"severity": verdict.Severity,
		"dao":      event.DAOName,
	}).Info("Alert claimed, dispatching")

	msg := d.formatAlert(event, verdict)
	if err := d.deliverWithRetry(ctx, alert, msg); err != nil {
		return true, err
	}

	if err := d.storage.MarkAlertSent(ctx, alert.AlertID); err != nil {
		return true, err
	}
	return true, nil
}

// deliverWithRetry attempts delivery with exponential backoff. Permanent
// errors and exhausted retries mark the alert failed; that is terminal.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, alert *models.AlertRecord, msg *notification.Message) error {
	attempts := d.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(d.retryDelay(attempt)):
			case <-ctx.Done():
				// Leave the alert pending so the claim TTL can recover it.
				return ctx.Err()
			}
		}

		lastErr = d.notifier.Send(ctx, msg)
		if lastErr == nil {
			return nil
		}

		errStr := lastErr.Error()
		if err := d.storage.RecordAlertAttempt(ctx, alert.AlertID, &errStr); err != nil {
			d.logger.WithField("alert_id", alert.AlertID).Warn("Failed to record alert attempt")
		}

		if !utils.IsTransient(lastErr) {
			d.logger.WithFields(logrus.Fields{
				"alert_id": alert.AlertID,
				"error":    lastErr,
			}).Error("Alert delivery failed permanently")
			break
		}

		d.logger.WithFields(logrus.Fields{
			"alert_id": alert.AlertID,
			"attempt":  attempt,
			"error":    lastErr,
		}).Warn("Alert delivery attempt failed, retrying")
	}

	if err := d.storage.MarkAlertFailed(ctx, alert.AlertID, lastErr.Error()); err != nil {
		d.logger.WithField("alert_id", alert.AlertID).Warn("Failed to mark alert failed")
	}
	return lastErr
}

// retryDelay computes the exponential backoff delay for an attempt
func (d *Dispatcher) retryDelay(attempt int) time.Duration {
	delay := d.config.RetryDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	delay = time.Duration(int64(delay) << uint(attempt-2))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}

// formatAlert renders the alert message in Telegram Markdown
func (d *Dispatcher) formatAlert(event *models.TransferEvent, verdict evaluator.Verdict) *notification.Message {
	emoji := "\U0001F4B0" // money bag
	switch verdict.Severity {
	case models.SeverityWarning:
		emoji = "⚠️"
	case models.SeverityCritical:
		emoji = "\U0001F6A8"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *Large %s transfer detected*\n\n", emoji, event.TokenSymbol)
	fmt.Fprintf(&b, "*DAO:* %s\n", event.DAOName)
	fmt.Fprintf(&b, "*Chain:* %s\n", event.Chain)
	fmt.Fprintf(&b, "*Amount:* %s %s\n", event.TokenAmount.StringFixed(2), event.TokenSymbol)
	if event.USDValue != nil {
		fmt.Fprintf(&b, "*USD value:* $%s\n", event.USDValue.StringFixed(2))
	}
	fmt.Fprintf(&b, "*From:* `%s`\n", event.FromAddress)
	fmt.Fprintf(&b, "*To:* `%s`\n", event.ToAddress)
	fmt.Fprintf(&b, "*Block:* %d\n", event.BlockNumber)
	fmt.Fprintf(&b, "*Time:* %s\n", event.BlockTime.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "\n[View transaction](%s)", explorerTxURL(event))

	return &notification.Message{
		Subject:  fmt.Sprintf("Large %s transfer (%s)", event.TokenSymbol, event.DAOName),
		Text:     b.String(),
		Severity: verdict.Severity,
		Markdown: true,
	}
}

// explorerTxURL builds the block explorer link for an event's transaction
func explorerTxURL(event *models.TransferEvent) string {
	txSignature := txSignatureFromID(event)
	switch event.Chain {
	case models.ChainSolana:
		return "https://solscan.io/tx/" + txSignature
	default:
		return "https://etherscan.io/tx/" + txSignature
	}
}

// txSignatureFromID recovers the transaction reference for display. The
// canonical ID is a hash, so the raw payload keeps the original signature;
// fall back to the event ID when no payload survived.
func txSignatureFromID(event *models.TransferEvent) string {
	if len(event.RawPayload) == 0 {
		return event.ID
	}

	var payload struct {
		Signature string `json:"signature"`
		TxHash    string `json:"transactionHash"`
	}
	if err := json.Unmarshal(event.RawPayload, &payload); err != nil {
		return event.ID
	}
	if payload.Signature != "" {
		return payload.Signature
	}
	if payload.TxHash != "" {
		return payload.TxHash
	}
	return event.ID
}
