// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable foreign keys", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// InsertEvent inserts an event if its ID is not yet present. A conflict on
// the primary key is the expected outcome for re-observed events and is
// reported as inserted=false, never as an error.
func (s *SQLiteStorage) InsertEvent(ctx context.Context, event *models.TransferEvent) (bool, error) {
	query := `
		INSERT OR IGNORE INTO events
		(id, chain, dao_name, from_address, to_address, token_symbol,
		 token_amount, usd_value, event_kind, block_number, block_time,
		 observed_at, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var usdValue interface{}
	if event.USDValue != nil {
		usdValue = event.USDValue.String()
	}
	var payload interface{}
	if len(event.RawPayload) > 0 {
		payload = string(event.RawPayload)
	}

	result, err := s.db.ExecContext(ctx, query,
		event.ID, string(event.Chain), event.DAOName, event.FromAddress,
		event.ToAddress, event.TokenSymbol, event.TokenAmount.String(),
		usdValue, string(event.Kind), event.BlockNumber, event.BlockTime,
		event.ObservedAt, payload)
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to insert event", err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get rows affected", err.Error())
	}

	return rowsAffected > 0, nil
}

// GetEvent retrieves a single event by ID
func (s *SQLiteStorage) GetEvent(ctx context.Context, id string) (*models.TransferEvent, error) {
	query := `
		SELECT id, chain, dao_name, from_address, to_address, token_symbol,
		       token_amount, usd_value, event_kind, block_number, block_time,
		       observed_at, raw_payload
		FROM events WHERE id = ?
	`

	event, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get event", err.Error())
	}
	return event, nil
}

// GetEvents retrieves events based on filter
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.TransferEvent, error) {
	query := `
		SELECT id, chain, dao_name, from_address, to_address, token_symbol,
		       token_amount, usd_value, event_kind, block_number, block_time,
		       observed_at, raw_payload
		FROM events WHERE 1=1
	`
	query, args := applyEventFilter(query, filter)
	query += " ORDER BY block_time DESC, block_number DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query events", err.Error())
	}
	defer rows.Close()

	var events []*models.TransferEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan event", err.Error())
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// GetEventCount returns the count of events matching filter
func (s *SQLiteStorage) GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM events WHERE 1=1"
	query, args := applyEventFilter(query, filter)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count events", err.Error())
	}
	return count, nil
}

// TryClaimAlert reserves the right to dispatch the alert for an event.
// The insert is conditional on the unique event_id constraint; when it
// loses, a second conditional update reclaims claims whose dispatcher died
// before reaching a terminal status and whose TTL has lapsed. Both
// statements are individually atomic, so two workers racing on the same
// event can never both proceed.
func (s *SQLiteStorage) TryClaimAlert(ctx context.Context, eventID string, severity models.Severity) (bool, *models.AlertRecord, error) {
	now := time.Now().UTC()
	alertID := uuid.NewString()

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alerts (alert_id, event_id, severity, delivery_status, attempts, claimed_at)
		VALUES (?, ?, ?, 'pending', 0, ?)
	`, alertID, eventID, string(severity), now)
	if err != nil {
		return false, nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to claim alert", err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get rows affected", err.Error())
	}

	if rowsAffected == 0 && s.config.ClaimTTL > 0 {
		// Reclaim a stale pending claim. The claimed_at guard makes this a
		// single conditional write; at most one racing worker wins it.
		cutoff := now.Add(-s.config.ClaimTTL)
		result, err = s.db.ExecContext(ctx, `
			UPDATE alerts SET alert_id = ?, claimed_at = ?, attempts = 0, last_error = NULL
			WHERE event_id = ? AND delivery_status = 'pending' AND claimed_at < ?
		`, alertID, now, eventID, cutoff)
		if err != nil {
			return false, nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to reclaim alert", err.Error())
		}
		rowsAffected, err = result.RowsAffected()
		if err != nil {
			return false, nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get rows affected", err.Error())
		}
	}

	if rowsAffected == 0 {
		return false, nil, nil
	}

	return true, &models.AlertRecord{
		AlertID:        alertID,
		EventID:        eventID,
		Severity:       severity,
		DeliveryStatus: models.DeliveryStatusPending,
		ClaimedAt:      now,
	}, nil
}

// RecordAlertAttempt increments the delivery attempt counter
func (s *SQLiteStorage) RecordAlertAttempt(ctx context.Context, alertID string, attemptErr *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET attempts = attempts + 1, last_error = ? WHERE alert_id = ?
	`, attemptErr, alertID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record alert attempt", err.Error())
	}
	return nil
}

// MarkAlertSent records successful delivery. Idempotent under retry: the
// status guard makes the second call a no-op.
func (s *SQLiteStorage) MarkAlertSent(ctx context.Context, alertID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET delivery_status = 'sent', dispatched_at = ?, last_error = NULL
		WHERE alert_id = ? AND delivery_status = 'pending'
	`, time.Now().UTC(), alertID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to mark alert sent", err.Error())
	}
	return nil
}

// MarkAlertFailed records terminal delivery failure
func (s *SQLiteStorage) MarkAlertFailed(ctx context.Context, alertID string, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET delivery_status = 'failed', last_error = ?
		WHERE alert_id = ? AND delivery_status = 'pending'
	`, lastError, alertID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to mark alert failed", err.Error())
	}
	return nil
}

// GetAlertByEventID retrieves the alert record for an event
func (s *SQLiteStorage) GetAlertByEventID(ctx context.Context, eventID string) (*models.AlertRecord, error) {
	query := `
		SELECT alert_id, event_id, severity, delivery_status, attempts,
		       claimed_at, dispatched_at, last_error, created_at
		FROM alerts WHERE event_id = ?
	`
	alert, err := scanAlert(s.db.QueryRowContext(ctx, query, eventID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get alert", err.Error())
	}
	return alert, nil
}

// GetAlertsByStatus retrieves alerts in a given delivery status
func (s *SQLiteStorage) GetAlertsByStatus(ctx context.Context, status models.DeliveryStatus, limit int) ([]*models.AlertRecord, error) {
	query := `
		SELECT alert_id, event_id, severity, delivery_status, attempts,
		       claimed_at, dispatched_at, last_error, created_at
		FROM alerts WHERE delivery_status = ? ORDER BY claimed_at DESC
	`
	args := []interface{}{string(status)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query alerts", err.Error())
	}
	defer rows.Close()

	var alerts []*models.AlertRecord
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan alert", err.Error())
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// GetCursor retrieves the poll cursor for a (chain, address) pair
func (s *SQLiteStorage) GetCursor(ctx context.Context, chain models.Chain, address string) (*models.PollCursor, error) {
	query := `
		SELECT chain, address, last_seen_block, last_poll_at, last_success_at,
		       consecutive_failures, updated_at
		FROM poll_cursors WHERE chain = ? AND address = ?
	`
	cursor, err := scanCursor(s.db.QueryRowContext(ctx, query, string(chain), address))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get cursor", err.Error())
	}
	return cursor, nil
}

// AdvanceCursor moves the watermark forward after a successful cycle.
// MAX() in the upsert keeps the advancement monotonic even if a slow cycle
// finishes after a faster one already moved the cursor past it.
func (s *SQLiteStorage) AdvanceCursor(ctx context.Context, chain models.Chain, address string, block uint64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO poll_cursors (chain, address, last_seen_block, last_poll_at, last_success_at, consecutive_failures, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(chain, address) DO UPDATE SET
			last_seen_block = MAX(last_seen_block, excluded.last_seen_block),
			last_poll_at = excluded.last_poll_at,
			last_success_at = excluded.last_success_at,
			consecutive_failures = 0,
			updated_at = excluded.updated_at
	`, string(chain), address, block, now, now, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to advance cursor", err.Error())
	}
	return nil
}

// RecordPollFailure bumps the failure counter without touching the watermark
func (s *SQLiteStorage) RecordPollFailure(ctx context.Context, chain models.Chain, address string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO poll_cursors (chain, address, last_seen_block, last_poll_at, consecutive_failures, updated_at)
		VALUES (?, ?, 0, ?, 1, ?)
		ON CONFLICT(chain, address) DO UPDATE SET
			last_poll_at = excluded.last_poll_at,
			consecutive_failures = poll_cursors.consecutive_failures + 1,
			updated_at = excluded.updated_at
	`, string(chain), address, now, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record poll failure", err.Error())
	}
	return nil
}

// ResetCursor is the explicit operator override; unlike AdvanceCursor it
// may move the watermark backwards.
func (s *SQLiteStorage) ResetCursor(ctx context.Context, chain models.Chain, address string, block uint64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO poll_cursors (chain, address, last_seen_block, last_poll_at, consecutive_failures, updated_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(chain, address) DO UPDATE SET
			last_seen_block = excluded.last_seen_block,
			consecutive_failures = 0,
			updated_at = excluded.updated_at
	`, string(chain), address, block, now, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to reset cursor", err.Error())
	}
	return nil
}

// GetCursors returns all poll cursors
func (s *SQLiteStorage) GetCursors(ctx context.Context) ([]*models.PollCursor, error) {
	query := `
		SELECT chain, address, last_seen_block, last_poll_at, last_success_at,
		       consecutive_failures, updated_at
		FROM poll_cursors ORDER BY chain, address
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query cursors", err.Error())
	}
	defer rows.Close()

	var cursors []*models.PollCursor
	for rows.Next() {
		cursor, err := scanCursor(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan cursor", err.Error())
		}
		cursors = append(cursors, cursor)
	}
	return cursors, rows.Err()
}

// SaveTokenPrice persists one observed token price
func (s *SQLiteStorage) SaveTokenPrice(ctx context.Context, price *models.TokenPrice) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_prices (token_symbol, chain, price_usd, fetched_at)
		VALUES (?, ?, ?, ?)
	`, price.TokenSymbol, string(price.Chain), price.PriceUSD.String(), price.FetchedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save token price", err.Error())
	}
	return nil
}

// GetLatestTokenPrice returns the most recent stored price for a token
func (s *SQLiteStorage) GetLatestTokenPrice(ctx context.Context, chain models.Chain, symbol string) (*models.TokenPrice, error) {
	query := `
		SELECT token_symbol, chain, price_usd, fetched_at
		FROM token_prices WHERE chain = ? AND token_symbol = ?
		ORDER BY fetched_at DESC LIMIT 1
	`
	var price models.TokenPrice
	var chainStr, priceStr string
	err := s.db.QueryRowContext(ctx, query, string(chain), symbol).
		Scan(&price.TokenSymbol, &chainStr, &priceStr, &price.FetchedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get token price", err.Error())
	}
	price.Chain = models.Chain(chainStr)
	price.PriceUSD, err = decimal.NewFromString(priceStr)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to parse stored price", err.Error())
	}
	return &price, nil
}

// GetDailySummary aggregates stored activity for the report window
func (s *SQLiteStorage) GetDailySummary(ctx context.Context, from, to time.Time) (*models.DailySummary, error) {
	summary := &models.DailySummary{
		From:          from,
		To:            to,
		TotalUSDMoved: decimal.Zero,
		EventsByDAO:   make(map[string]int64),
		USDByDAO:      make(map[string]decimal.Decimal),
		EventsByKind:  make(map[string]int64),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT dao_name, event_kind, usd_value, id
		FROM events WHERE observed_at >= ? AND observed_at < ?
	`, from, to)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query daily events", err.Error())
	}
	defer rows.Close()

	largest := decimal.Zero
	for rows.Next() {
		var daoName, kind, id string
		var usdStr sql.NullString
		if err := rows.Scan(&daoName, &kind, &usdStr, &id); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan daily event", err.Error())
		}
		summary.TotalEvents++
		summary.EventsByDAO[daoName]++
		summary.EventsByKind[kind]++
		if usdStr.Valid {
			usd, err := decimal.NewFromString(usdStr.String)
			if err != nil {
				continue
			}
			summary.TotalUSDMoved = summary.TotalUSDMoved.Add(usd)
			summary.USDByDAO[daoName] = summary.USDByDAO[daoName].Add(usd)
			if usd.GreaterThan(largest) {
				largest = usd
				summary.LargestEventID = id
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed reading daily events", err.Error())
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN delivery_status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM alerts WHERE claimed_at >= ? AND claimed_at < ?
	`, from, to).Scan(&summary.TotalAlerts, &summary.FailedAlerts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count daily alerts", err.Error())
	}

	return summary, nil
}

// GetStorageStats returns storage statistics
func (s *SQLiteStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(observed_at), MAX(observed_at) FROM events
	`).Scan(&stats.TotalEvents, &nullableTime{&stats.OldestEvent}, &nullableTime{&stats.LatestEvent})
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get event stats", err.Error())
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN delivery_status = 'sent' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN delivery_status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM alerts
	`).Scan(&stats.TotalAlerts, &stats.SentAlerts, &stats.FailedAlerts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get alert stats", err.Error())
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM poll_cursors").Scan(&stats.Cursors); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get cursor stats", err.Error())
	}

	return stats, nil
}
