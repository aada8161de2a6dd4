package core

import "time"

// RateLimitState captures the shared rate-limit view of one API host, as
// persisted by the tracker stores.
type RateLimitState struct {
	RequestCount int        `json:"request_count"`
	Limit        int        `json:"limit"`
	Remaining    int        `json:"remaining"`
	WindowStart  time.Time  `json:"window_start"`
	ResetAt      *time.Time `json:"reset_at,omitempty"`
	BackoffUntil *time.Time `json:"backoff_until,omitempty"`
	Last429At    *time.Time `json:"last_429_at,omitempty"`
}

// Exhausted reports whether the last observed window budget is spent and has
// not reset yet.
func (s RateLimitState) Exhausted(now time.Time) bool {
	if s.Limit <= 0 || s.Remaining > 0 || s.ResetAt == nil {
		return false
	}
	return now.Before(*s.ResetAt)
}

// BackingOff reports whether a recorded throttle is still in force.
func (s RateLimitState) BackingOff(now time.Time) bool {
	return s.BackoffUntil != nil && now.Before(*s.BackoffUntil)
}
