package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertStatus moves strictly forward: new -> acknowledged -> resolved
type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "new"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusNew, AlertStatusAcknowledged, AlertStatusResolved:
		return true
	}
	return false
}

// SecurityAlert is raised when a threat check crosses one of its thresholds
type SecurityAlert struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	CheckKind  CheckKind     `json:"check_kind" db:"check_kind"`
	Severity   Severity      `json:"severity" db:"severity"`
	Title      string        `json:"title" db:"title"`
	Message    string        `json:"message" db:"message"`
	Value      float64       `json:"value" db:"value"`
	Status     AlertStatus   `json:"status" db:"status"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
	ResolvedBy *string       `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
	Metrics    EventMetadata `json:"metrics,omitempty" db:"metrics"`
}

// TransitionSources lists the statuses from which target may be entered.
func TransitionSources(target AlertStatus) []AlertStatus {
	switch target {
	case AlertStatusAcknowledged:
		return []AlertStatus{AlertStatusNew}
	case AlertStatusResolved:
		return []AlertStatus{AlertStatusNew, AlertStatusAcknowledged}
	default:
		return nil
	}
}

// CheckTransition reports whether the alert may move to target from its
// current status.
func (a *SecurityAlert) CheckTransition(target AlertStatus) error {
	if a.Status == AlertStatusResolved {
		return ErrAlreadyResolved
	}
	for _, from := range TransitionSources(target) {
		if a.Status == from {
			return nil
		}
	}
	return ErrInvalidTransition
}

// AlertPage is one page of alerts, newest first
type AlertPage struct {
	Alerts   []*SecurityAlert `json:"alerts"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}
