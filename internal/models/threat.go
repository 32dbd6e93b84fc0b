package models

import (
	"fmt"
	"time"
)

// ThreatLevel shares the severity scale
type ThreatLevel = Severity

// Breakpoints map a raw count to a sub-score of 0..3. A count strictly above
// High scores 3, above Medium scores 2, above Low scores 1.
type Breakpoints struct {
	Low    int
	Medium int
	High   int
}

func (b Breakpoints) Score(value int) int {
	switch {
	case value > b.High:
		return 3
	case value > b.Medium:
		return 2
	case value > b.Low:
		return 1
	default:
		return 0
	}
}

var (
	FailedLoginBreakpoints  = Breakpoints{Low: 10, Medium: 20, High: 50}
	SuspiciousIPBreakpoints = Breakpoints{Low: 1, Medium: 3, High: 5}
	ErrorEventBreakpoints   = Breakpoints{Low: 20, Medium: 50, High: 100}
)

// LevelForScore maps the summed sub-scores to a level.
func LevelForScore(score int) ThreatLevel {
	switch {
	case score >= 7:
		return SeverityCritical
	case score >= 5:
		return SeverityHigh
	case score >= 3:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ThreatIndicators are the raw counts gathered over the lookback window
type ThreatIndicators struct {
	FailedLogins  int `json:"failed_logins"`
	SuspiciousIPs int `json:"suspicious_ips"`
	ErrorEvents   int `json:"error_events"`
	BlockedIPs    int `json:"blocked_ips"`
	CSRFFailures  int `json:"csrf_failures"`
	Lockouts      int `json:"lockouts"`
}

// Score sums the sub-scores. BlockedIPs, CSRFFailures and Lockouts are
// informational and feed alert checks only.
func (i ThreatIndicators) Score() int {
	return FailedLoginBreakpoints.Score(i.FailedLogins) +
		SuspiciousIPBreakpoints.Score(i.SuspiciousIPs) +
		ErrorEventBreakpoints.Score(i.ErrorEvents)
}

// ThreatAssessment is a point-in-time evaluation
type ThreatAssessment struct {
	Level       ThreatLevel      `json:"level"`
	Score       int              `json:"score"`
	Indicators  ThreatIndicators `json:"indicators"`
	Lookback    time.Duration    `json:"-"`
	EvaluatedAt time.Time        `json:"evaluated_at"`
}

func NewThreatAssessment(indicators ThreatIndicators, lookback time.Duration, at time.Time) *ThreatAssessment {
	score := indicators.Score()
	return &ThreatAssessment{
		Level:       LevelForScore(score),
		Score:       score,
		Indicators:  indicators,
		Lookback:    lookback,
		EvaluatedAt: at,
	}
}

// CheckKind identifies which quantity an alert check measures
type CheckKind string

const (
	CheckFailedLogins  CheckKind = "failed_logins"
	CheckSuspiciousIPs CheckKind = "suspicious_ips"
	CheckErrorRate     CheckKind = "error_rate"
	CheckCSRFFailures  CheckKind = "csrf_failures"
	CheckLockoutRatio  CheckKind = "lockout_ratio"
	CheckThreatLevel   CheckKind = "threat_level"
)

// lockoutRatioMinSample keeps the ratio quiet when only a handful of
// failures happened in the window.
const lockoutRatioMinSample = 20

// Measure extracts the checked quantity from an assessment.
func (k CheckKind) Measure(a *ThreatAssessment) (float64, error) {
	ind := a.Indicators
	switch k {
	case CheckFailedLogins:
		return float64(ind.FailedLogins), nil
	case CheckSuspiciousIPs:
		return float64(ind.SuspiciousIPs), nil
	case CheckErrorRate:
		return float64(ind.ErrorEvents), nil
	case CheckCSRFFailures:
		return float64(ind.CSRFFailures), nil
	case CheckLockoutRatio:
		if ind.FailedLogins < lockoutRatioMinSample {
			return 0, nil
		}
		return float64(ind.Lockouts) / float64(ind.FailedLogins), nil
	case CheckThreatLevel:
		return float64(a.Level.Rank() - 1), nil
	default:
		return 0, fmt.Errorf("unknown check kind %q", k)
	}
}

func (k CheckKind) Title() string {
	switch k {
	case CheckFailedLogins:
		return "Elevated failed logins"
	case CheckSuspiciousIPs:
		return "Suspicious source addresses"
	case CheckErrorRate:
		return "Elevated error events"
	case CheckCSRFFailures:
		return "Repeated CSRF failures"
	case CheckLockoutRatio:
		return "High lockout ratio"
	case CheckThreatLevel:
		return "Threat level raised"
	default:
		return string(k)
	}
}

// Thresholds are strict lower bounds: a value above Critical is critical.
type Thresholds struct {
	Medium   float64
	High     float64
	Critical float64
}

// AlertCheck pairs a measured quantity with its thresholds
type AlertCheck struct {
	Kind       CheckKind
	Thresholds Thresholds
}

// Evaluate returns the highest severity crossed and the measured value. ok
// is false when no threshold is crossed.
func (c AlertCheck) Evaluate(a *ThreatAssessment) (severity Severity, value float64, ok bool, err error) {
	value, err = c.Kind.Measure(a)
	if err != nil {
		return "", 0, false, err
	}
	switch {
	case value > c.Thresholds.Critical:
		return SeverityCritical, value, true, nil
	case value > c.Thresholds.High:
		return SeverityHigh, value, true, nil
	case value > c.Thresholds.Medium:
		return SeverityMedium, value, true, nil
	default:
		return "", value, false, nil
	}
}

// DefaultAlertChecks mirror the scoring breakpoints for the scored metrics.
func DefaultAlertChecks() []AlertCheck {
	return []AlertCheck{
		{Kind: CheckFailedLogins, Thresholds: Thresholds{Medium: 10, High: 20, Critical: 50}},
		{Kind: CheckSuspiciousIPs, Thresholds: Thresholds{Medium: 1, High: 3, Critical: 5}},
		{Kind: CheckErrorRate, Thresholds: Thresholds{Medium: 20, High: 50, Critical: 100}},
		{Kind: CheckCSRFFailures, Thresholds: Thresholds{Medium: 5, High: 20, Critical: 50}},
		{Kind: CheckLockoutRatio, Thresholds: Thresholds{Medium: 0.05, High: 0.1, Critical: 0.15}},
		{Kind: CheckThreatLevel, Thresholds: Thresholds{Medium: 0, High: 1, Critical: 2}},
	}
}
