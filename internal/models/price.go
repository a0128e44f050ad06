package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenPrice is one observed USD price for a monitored token, retained
// for audit and for the daily report.
type TokenPrice struct {
	TokenSymbol string          `json:"token_symbol" db:"token_symbol"`
	Chain       Chain           `json:"chain" db:"chain"`
	PriceUSD    decimal.Decimal `json:"price_usd" db:"price_usd"`
	FetchedAt   time.Time       `json:"fetched_at" db:"fetched_at"`
}

// DailySummary aggregates the last 24 hours of stored activity for the
// daily report.
type DailySummary struct {
	From           time.Time                  `json:"from"`
	To             time.Time                  `json:"to"`
	TotalEvents    int64                      `json:"total_events"`
	TotalAlerts    int64                      `json:"total_alerts"`
	FailedAlerts   int64                      `json:"failed_alerts"`
	TotalUSDMoved  decimal.Decimal            `json:"total_usd_moved"`
	EventsByDAO    map[string]int64           `json:"events_by_dao"`
	USDByDAO       map[string]decimal.Decimal `json:"usd_by_dao"`
	EventsByKind   map[string]int64           `json:"events_by_kind"`
	LargestEventID string                     `json:"largest_event_id,omitempty"`
}
