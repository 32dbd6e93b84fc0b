package models

import "time"

// RateLimitWindow is the live fixed window for one rate-limit key
type RateLimitWindow struct {
	Key          string    `db:"key"`
	RequestCount int       `db:"request_count"`
	WindowStart  time.Time `db:"window_start"`
}

// RetryAfter is the time left until the window elapses. Non-positive values
// mean the window is over and the next request opens a fresh one.
func (w RateLimitWindow) RetryAfter(now time.Time, window time.Duration) time.Duration {
	return window - now.Sub(w.WindowStart)
}

// Elapsed reports whether the window no longer constrains new requests.
func (w RateLimitWindow) Elapsed(now time.Time, window time.Duration) bool {
	return w.RetryAfter(now, window) <= 0
}

// RateLimitDecision is the outcome of one atomic consume against a store
type RateLimitDecision struct {
	Allowed bool
	Window  RateLimitWindow
}
