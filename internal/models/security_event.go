package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a security event
type EventType string

const (
	EventLoginSuccess      EventType = "login_success"
	EventLoginFailed       EventType = "login_failed"
	EventLoginLockout      EventType = "login_lockout"
	EventLogout            EventType = "logout"
	EventCSRFFailure       EventType = "csrf_failure"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
	EventAlertCreated      EventType = "alert_created"
	EventAlertTransition   EventType = "alert_transition"
	EventSystemError       EventType = "system_error"
)

func (t EventType) Valid() bool {
	switch t {
	case EventLoginSuccess, EventLoginFailed, EventLoginLockout, EventLogout, EventCSRFFailure,
		EventRateLimitExceeded, EventAlertCreated, EventAlertTransition, EventSystemError:
		return true
	}
	return false
}

// Severity is ordered low < medium < high < critical
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal position of the severity, 0 for unknown values.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// DefaultSeverity is used when a caller records an event without one.
func (t EventType) DefaultSeverity() Severity {
	switch t {
	case EventLoginFailed, EventCSRFFailure, EventRateLimitExceeded:
		return SeverityMedium
	case EventLoginLockout, EventSystemError:
		return SeverityHigh
	default:
		return SeverityLow
	}
}

// SecurityEvent is an append-only record of a security-relevant occurrence
type SecurityEvent struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	Identity    *string       `json:"identity,omitempty" db:"identity"`
	EventType   EventType     `json:"event_type" db:"event_type"`
	Description string        `json:"description" db:"description"`
	Severity    Severity      `json:"severity" db:"severity"`
	IPAddress   *string       `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent   *string       `json:"user_agent,omitempty" db:"user_agent"`
	Metadata    EventMetadata `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

// SecurityEventInput is what defense components hand to the event log
type SecurityEventInput struct {
	Identity    string
	EventType   EventType
	Description string
	Severity    Severity
	IPAddress   string
	UserAgent   string
	Metadata    EventMetadata
}

// EventFilter narrows an event query. Zero values mean "no constraint".
type EventFilter struct {
	Identity  string
	EventType EventType
	DateFrom  *time.Time
	DateTo    *time.Time
}

// EventPage is one page of a query ordered by created_at descending
type EventPage struct {
	Events   []*SecurityEvent `json:"events"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// EventMetadata holds additional context stored as JSONB
type EventMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (m *EventMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(EventMetadata)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrBadRequest
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*m = EventMetadata(decoded)
	return nil
}

// Value implements driver.Valuer for JSONB
func (m EventMetadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(map[string]interface{}(m))
}
