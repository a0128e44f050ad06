// File: internal/scheduler/backoff.go
package scheduler

import "time"

// backoffDelay computes the exponential backoff delay after consecutive
// failures: base * 2^(failures-1), capped at max.
func backoffDelay(base, max time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = 5 * time.Second
	}
	if max <= 0 {
		max = 10 * time.Minute
	}
	if failures < 1 {
		return base
	}
	// Cap the shift so the multiplication cannot overflow.
	shift := failures - 1
	if shift > 20 {
		shift = 20
	}
	delay := base << uint(shift)
	if delay > max || delay < 0 {
		delay = max
	}
	return delay
}
