// File: internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgreSQLMigrations(),
	}
}

// Connect establishes database connection
func (s *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgreSQLStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgreSQLStorage) Migrate() error {
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

// InsertEvent inserts an event if absent; conflicts report inserted=false
func (s *PostgreSQLStorage) InsertEvent(ctx context.Context, event *models.TransferEvent) (bool, error) {
	query := rebind(`
		INSERT INTO events
		(id, chain, dao_name, from_address, to_address, token_symbol,
		 token_amount, usd_value, event_kind, block_number, block_time,
		 observed_at, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)

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
func (s *PostgreSQLStorage) GetEvent(ctx context.Context, id string) (*models.TransferEvent, error) {
	query := rebind(`
		SELECT id, chain, dao_name, from_address, to_address, token_symbol,
		       token_amount::text, usd_value::text, event_kind, block_number,
		       block_time, observed_at, raw_payload::text
		FROM events WHERE id = ?
	`)

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
func (s *PostgreSQLStorage) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.TransferEvent, error) {
	query := `
		SELECT id, chain, dao_name, from_address, to_address, token_symbol,
		       token_amount::text, usd_value::text, event_kind, block_number,
		       block_time, observed_at, raw_payload::text
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

	rows, err := s.db.QueryContext(ctx, rebind(query), args...)
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
func (s *PostgreSQLStorage) GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM events WHERE 1=1"
	query, args := applyEventFilter(query, filter)

	var count int64
	if err := s.db.QueryRowContext(ctx, rebind(query), args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count events", err.Error())
	}
	return count, nil
}

// TryClaimAlert reserves the right to dispatch an alert for an event; see
// the SQLite implementation for the claim semantics.
func (s *PostgreSQLStorage) TryClaimAlert(ctx context.Context, eventID string, severity models.Severity) (bool, *models.AlertRecord, error) {
	now := time.Now().UTC()
	alertID := uuid.NewString()

	result, err := s.db.ExecContext(ctx, rebind(`
		INSERT INTO alerts (alert_id, event_id, severity, delivery_status, attempts, claimed_at)
		VALUES (?, ?, ?, 'pending', 0, ?)
		ON CONFLICT (event_id) DO NOTHING
	`), alertID, eventID, string(severity), now)
	if err != nil {
		return false, nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to claim alert", err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get rows affected", err.Error())
	}

	if rowsAffected == 0 && s.config.ClaimTTL > 0 {
		cutoff := now.Add(-s.config.ClaimTTL)
		result, err = s.db.ExecContext(ctx, rebind(`
			UPDATE alerts SET alert_id = ?, claimed_at = ?, attempts = 0, last_error = NULL
			WHERE event_id = ? AND delivery_status = 'pending' AND claimed_at < ?
		`), alertID, now, eventID, cutoff)
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
func (s *PostgreSQLStorage) RecordAlertAttempt(ctx context.Context, alertID string, attemptErr *string) error {
	_, err := s.db.ExecContext(ctx, rebind(`
		UPDATE alerts SET attempts = attempts + 1, last_error = ? WHERE alert_id = ?
	`), attemptErr, alertID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record alert attempt", err.Error())
	}
	return nil
}

// MarkAlertSent records successful delivery
func (s *PostgreSQLStorage) MarkAlertSent(ctx context.Context, alertID string) error {
	_, err := s.db.ExecContext(ctx, rebind(`
		UPDATE alerts SET delivery_status = 'sent', dispatched_at = ?, last_error = NULL
		WHERE alert_id = ? AND delivery_status = 'pending'
	`), time.Now().UTC(), alertID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to mark alert sent", err.Error())
	}
	return nil
}

// MarkAlertFailed records terminal delivery failure
func (s *PostgreSQLStorage) MarkAlertFailed(ctx context.Context, alertID string, lastError string) error {
	_, err := s.db.ExecContext(ctx, rebind(`
		UPDATE alerts SET delivery_status = 'failed', last_error = ?
		WHERE alert_id = ? AND delivery_status = 'pending'
	`), lastError, alertID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to mark alert failed", err.Error())
	}
	return nil
}

// GetAlertByEventID retrieves the alert record for an event
func (s *PostgreSQLStorage) GetAlertByEventID(ctx context.Context, eventID string) (*models.AlertRecord, error) {
	query := rebind(`
		SELECT alert_id, event_id, severity, delivery_status, attempts,
		       claimed_at, dispatched_at, last_error, created_at
		FROM alerts WHERE event_id = ?
	`)
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
func (s *PostgreSQLStorage) GetAlertsByStatus(ctx context.Context, status models.DeliveryStatus, limit int) ([]*models.AlertRecord, error) {
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

	rows, err := s.db.QueryContext(ctx, rebind(query), args...)
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
func (s *PostgreSQLStorage) GetCursor(ctx context.Context, chain models.Chain, address string) (*models.PollCursor, error) {
	query := rebind(`
		SELECT chain, address, last_seen_block, last_poll_at, last_success_at,
		       consecutive_failures, updated_at
		FROM poll_cursors WHERE chain = ? AND address = ?
	`)
	cursor, err := scanCursor(s.db.QueryRowContext(ctx, query, string(chain), address))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get cursor", err.Error())
	}
	return cursor, nil
}

// AdvanceCursor moves the watermark forward after a successful cycle
func (s *PostgreSQLStorage) AdvanceCursor(ctx context.Context, chain models.Chain, address string, block uint64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, rebind(`
		INSERT INTO poll_cursors (chain, address, last_seen_block, last_poll_at, last_success_at, consecutive_failures, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT (chain, address) DO UPDATE SET
			last_seen_block = GREATEST(poll_cursors.last_seen_block, EXCLUDED.last_seen_block),
			last_poll_at = EXCLUDED.last_poll_at,
			last_success_at = EXCLUDED.last_success_at,
			consecutive_failures = 0,
			updated_at = EXCLUDED.updated_at
	`), string(chain), address, block, now, now, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to advance cursor", err.Error())
	}
	return nil
}

// RecordPollFailure bumps the failure counter without touching the watermark
func (s *PostgreSQLStorage) RecordPollFailure(ctx context.Context, chain models.Chain, address string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, rebind(`
		INSERT INTO poll_cursors (chain, address, last_seen_block, last_poll_at, consecutive_failures, updated_at)
		VALUES (?, ?, 0, ?, 1, ?)
		ON CONFLICT (chain, address) DO UPDATE SET
			last_poll_at = EXCLUDED.last_poll_at,
			consecutive_failures = poll_cursors.consecutive_failures + 1,
			updated_at = EXCLUDED.updated_at
	`), string(chain), address, now, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record poll failure", err.Error())
	}
	return nil
}

// ResetCursor is the explicit operator override
func (s *PostgreSQLStorage) ResetCursor(ctx context.Context, chain models.Chain, address string, block uint64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, rebind(`
		INSERT INTO poll_cursors (chain, address, last_seen_block, last_poll_at, consecutive_failures, updated_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT (chain, address) DO UPDATE SET
			last_seen_block = EXCLUDED.last_seen_block,
			consecutive_failures = 0,
			updated_at = EXCLUDED.updated_at
	`), string(chain), address, block, now, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to reset cursor", err.Error())
	}
	return nil
}

// GetCursors returns all poll cursors
func (s *PostgreSQLStorage) GetCursors(ctx context.Context) ([]*models.PollCursor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chain, address, last_seen_block, last_poll_at, last_success_at,
		       consecutive_failures, updated_at
		FROM poll_cursors ORDER BY chain, address
	`)
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
func (s *PostgreSQLStorage) SaveTokenPrice(ctx context.Context, price *models.TokenPrice) error {
	_, err := s.db.ExecContext(ctx, rebind(`
		INSERT INTO token_prices (token_symbol, chain, price_usd, fetched_at)
		VALUES (?, ?, ?, ?)
	`), price.TokenSymbol, string(price.Chain), price.PriceUSD.String(), price.FetchedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save token price", err.Error())
	}
	return nil
}

// GetLatestTokenPrice returns the most recent stored price for a token
func (s *PostgreSQLStorage) GetLatestTokenPrice(ctx context.Context, chain models.Chain, symbol string) (*models.TokenPrice, error) {
	query := rebind(`
		SELECT token_symbol, chain, price_usd::text, fetched_at
		FROM token_prices WHERE chain = ? AND token_symbol = ?
		ORDER BY fetched_at DESC LIMIT 1
	`)
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
func (s *PostgreSQLStorage) GetDailySummary(ctx context.Context, from, to time.Time) (*models.DailySummary, error) {
	summary := &models.DailySummary{
		From:          from,
		To:            to,
		TotalUSDMoved: decimal.Zero,
		EventsByDAO:   make(map[string]int64),
		USDByDAO:      make(map[string]decimal.Decimal),
		EventsByKind:  make(map[string]int64),
	}

	rows, err := s.db.QueryContext(ctx, rebind(`
		SELECT dao_name, event_kind, usd_value::text, id
		FROM events WHERE observed_at >= ? AND observed_at < ?
	`), from, to)
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

	err = s.db.QueryRowContext(ctx, rebind(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN delivery_status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM alerts WHERE claimed_at >= ? AND claimed_at < ?
	`), from, to).Scan(&summary.TotalAlerts, &summary.FailedAlerts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count daily alerts", err.Error())
	}

	return summary, nil
}

// GetStorageStats returns storage statistics
func (s *PostgreSQLStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
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
