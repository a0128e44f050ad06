package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artematbio/bio-whale-monitor/internal/models"
)

// rowScanner abstracts over *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*models.TransferEvent, error) {
	var event models.TransferEvent
	var chain, kind, amountStr string
	var usdStr, payloadStr sql.NullString

	err := row.Scan(&event.ID, &chain, &event.DAOName, &event.FromAddress,
		&event.ToAddress, &event.TokenSymbol, &amountStr, &usdStr, &kind,
		&event.BlockNumber, &event.BlockTime, &event.ObservedAt, &payloadStr)
	if err != nil {
		return nil, err
	}

	event.Chain = models.Chain(chain)
	event.Kind = models.EventKind(kind)

	event.TokenAmount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid stored token amount %q: %w", amountStr, err)
	}
	if usdStr.Valid {
		usd, err := decimal.NewFromString(usdStr.String)
		if err != nil {
			return nil, fmt.Errorf("invalid stored usd value %q: %w", usdStr.String, err)
		}
		event.USDValue = &usd
	}
	if payloadStr.Valid {
		event.RawPayload = json.RawMessage(payloadStr.String)
	}

	return &event, nil
}

func scanAlert(row rowScanner) (*models.AlertRecord, error) {
	var alert models.AlertRecord
	var severity, status string
	var dispatchedAt sql.NullTime
	var lastError sql.NullString

	err := row.Scan(&alert.AlertID, &alert.EventID, &severity, &status,
		&alert.Attempts, &alert.ClaimedAt, &dispatchedAt, &lastError,
		&alert.CreatedAt)
	if err != nil {
		return nil, err
	}

	alert.Severity = models.Severity(severity)
	alert.DeliveryStatus = models.DeliveryStatus(status)
	if dispatchedAt.Valid {
		alert.DispatchedAt = &dispatchedAt.Time
	}
	if lastError.Valid {
		alert.LastError = &lastError.String
	}

	return &alert, nil
}

func scanCursor(row rowScanner) (*models.PollCursor, error) {
	var cursor models.PollCursor
	var chain string
	var lastSuccessAt sql.NullTime

	err := row.Scan(&chain, &cursor.Address, &cursor.LastSeenBlock,
		&cursor.LastPollAt, &lastSuccessAt, &cursor.ConsecutiveFailures,
		&cursor.UpdatedAt)
	if err != nil {
		return nil, err
	}

	cursor.Chain = models.Chain(chain)
	if lastSuccessAt.Valid {
		cursor.LastSuccessAt = &lastSuccessAt.Time
	}

	return &cursor, nil
}

// applyEventFilter appends filter conditions with ? placeholders. Postgres
// queries are rebound afterwards.
func applyEventFilter(query string, filter models.EventFilter) (string, []interface{}) {
	args := []interface{}{}

	if filter.Chain != nil {
		query += " AND chain = ?"
		args = append(args, string(*filter.Chain))
	}
	if filter.DAOName != nil {
		query += " AND dao_name = ?"
		args = append(args, *filter.DAOName)
	}
	if filter.TokenSymbol != nil {
		query += " AND token_symbol = ?"
		args = append(args, *filter.TokenSymbol)
	}
	if filter.FromBlock != nil {
		query += " AND block_number >= ?"
		args = append(args, *filter.FromBlock)
	}
	if filter.ToBlock != nil {
		query += " AND block_number <= ?"
		args = append(args, *filter.ToBlock)
	}
	if filter.Since != nil {
		query += " AND observed_at >= ?"
		args = append(args, *filter.Since)
	}

	return query, args
}

// rebind converts ? placeholders to the $n form lib/pq expects
func rebind(query string) string {
	var builder strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			builder.WriteString(fmt.Sprintf("$%d", n))
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

// nullableTime scans a possibly-NULL timestamp into a *time.Time
type nullableTime struct {
	dst **time.Time
}

func (n *nullableTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*n.dst = nil
		return nil
	case time.Time:
		t := v
		*n.dst = &t
		return nil
	case []byte:
		return n.parse(string(v))
	case string:
		return n.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into time", value)
	}
}

func (n *nullableTime) parse(s string) error {
	// The last two layouts are Go's time.Time.String() form, which the
	// sqlite driver hands back for MIN()/MAX() over timestamp columns.
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05 -0700 MST",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			*n.dst = &t
			return nil
		}
	}
	return fmt.Errorf("cannot parse %q as time", s)
}
