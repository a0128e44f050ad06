// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/artematbio/bio-whale-monitor/internal/models"
)

// Storage is the system of record. It is the sole arbiter of "have we
// already processed this event" and "have we already alerted on it".
// All coordination between poll workers happens through the atomic
// conditional writes below, never through in-process locks, so the design
// stays correct when workers run in separate processes.
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Event operations. InsertEvent reports whether the row was newly
	// inserted; false means the event was already present, which callers
	// must treat as success and skip downstream evaluation for.
	InsertEvent(ctx context.Context, event *models.TransferEvent) (bool, error)
	GetEvent(ctx context.Context, id string) (*models.TransferEvent, error)
	GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.TransferEvent, error)
	GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error)

	// Alert operations. TryClaimAlert is the single race-safe claim:
	// exactly one caller gets claimed=true per event, even under
	// concurrent poll cycles. A pending claim older than the configured
	// TTL is reclaimable, so a worker crash mid-dispatch cannot suppress
	// an alert forever.
	TryClaimAlert(ctx context.Context, eventID string, severity models.Severity) (bool, *models.AlertRecord, error)
	RecordAlertAttempt(ctx context.Context, alertID string, attemptErr *string) error
	MarkAlertSent(ctx context.Context, alertID string) error
	MarkAlertFailed(ctx context.Context, alertID string, lastError string) error
	GetAlertByEventID(ctx context.Context, eventID string) (*models.AlertRecord, error)
	GetAlertsByStatus(ctx context.Context, status models.DeliveryStatus, limit int) ([]*models.AlertRecord, error)

	// Cursor operations. AdvanceCursor is monotonic: a lower block number
	// than the stored watermark never moves it backwards. ResetCursor is
	// the explicit operator override.
	GetCursor(ctx context.Context, chain models.Chain, address string) (*models.PollCursor, error)
	AdvanceCursor(ctx context.Context, chain models.Chain, address string, block uint64) error
	RecordPollFailure(ctx context.Context, chain models.Chain, address string) error
	ResetCursor(ctx context.Context, chain models.Chain, address string, block uint64) error
	GetCursors(ctx context.Context) ([]*models.PollCursor, error)

	// Price history
	SaveTokenPrice(ctx context.Context, price *models.TokenPrice) error
	GetLatestTokenPrice(ctx context.Context, chain models.Chain, symbol string) (*models.TokenPrice, error)

	// Reporting and statistics
	GetDailySummary(ctx context.Context, from, to time.Time) (*models.DailySummary, error)
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalEvents  int64      `json:"total_events"`
	TotalAlerts  int64      `json:"total_alerts"`
	SentAlerts   int64      `json:"sent_alerts"`
	FailedAlerts int64      `json:"failed_alerts"`
	Cursors      int64      `json:"cursors"`
	OldestEvent  *time.Time `json:"oldest_event,omitempty"`
	LatestEvent  *time.Time `json:"latest_event,omitempty"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
	ClaimTTL         time.Duration `json:"claim_ttl"`
}
