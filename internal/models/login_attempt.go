package models

import "time"

// LoginAttempt represents a single authentication attempt against an identity
type LoginAttempt struct {
	ID          string    `db:"id"`
	Identity    string    `db:"identity"`
	IPAddress   string    `db:"ip_address"`
	UserAgent   string    `db:"user_agent"`
	Success     bool      `db:"success"`
	AttemptTime time.Time `db:"attempt_time"`
}
