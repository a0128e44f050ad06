package models

import "time"

// Severity grades how far an event exceeded its threshold. Used for
// formatting only, never for suppression.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// DeliveryStatus tracks alert delivery progress
type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// AlertRecord is one dispatched notification. EventID is unique: for a
// given event at most one record exists and at most one ever transitions
// to sent.
type AlertRecord struct {
	AlertID        string         `json:"alert_id" db:"alert_id"`
	EventID        string         `json:"event_id" db:"event_id"`
	Severity       Severity       `json:"severity" db:"severity"`
	DeliveryStatus DeliveryStatus `json:"delivery_status" db:"delivery_status"`
	Attempts       int            `json:"attempts" db:"attempts"`
	ClaimedAt      time.Time      `json:"claimed_at" db:"claimed_at"`
	DispatchedAt   *time.Time     `json:"dispatched_at,omitempty" db:"dispatched_at"`
	LastError      *string        `json:"last_error,omitempty" db:"last_error"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}
