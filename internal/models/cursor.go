package models

import "time"

// PollCursor is the per-(chain, address) watermark: the highest block or
// slot already incorporated into processing. Advanced only after a
// successful poll cycle, never rolled back except by operator reset.
type PollCursor struct {
	Chain               Chain      `json:"chain" db:"chain"`
	Address             string     `json:"address" db:"address"`
	LastSeenBlock       uint64     `json:"last_seen_block" db:"last_seen_block"`
	LastPollAt          time.Time  `json:"last_poll_at" db:"last_poll_at"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty" db:"last_success_at"`
	ConsecutiveFailures int        `json:"consecutive_failures" db:"consecutive_failures"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// PairHealth is the per-pair health signal exposed to the process
// supervisor.
type PairHealth struct {
	Chain               Chain      `json:"chain"`
	Address             string     `json:"address"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Healthy             bool       `json:"healthy"`
}
