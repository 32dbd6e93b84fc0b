package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is the structured-log shape of a security event
type AuditEvent struct {
	EventID     string
	EventType   string
	Severity    string
	Identity    string
	IPAddress   string
	UserAgent   string
	Description string
	OccurredAt  time.Time
	Metadata    map[string]any
}

// AuditLogger writes security events to the structured log. It is both the
// operational mirror of the event table and the fallback channel when the
// table cannot be written.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.With(slog.String("audit_type", "security"))}
}

func (al *AuditLogger) attrs(event AuditEvent) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.String("severity", event.Severity),
		slog.String("timestamp", event.OccurredAt.UTC().Format(time.RFC3339Nano)),
	}

	if event.EventID != "" {
		attrs = append(attrs, slog.String("event_id", event.EventID))
	}
	if event.Identity != "" {
		attrs = append(attrs, slog.String("identity", MaskIdentity(event.Identity)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.Description != "" {
		attrs = append(attrs, slog.String("description", event.Description))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}
	return attrs
}

// LogSecurityEvent mirrors a recorded event. Medium and above log at warn.
func (al *AuditLogger) LogSecurityEvent(ctx context.Context, event AuditEvent) {
	level := slog.LevelInfo
	switch event.Severity {
	case "medium", "high", "critical":
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "security event", al.attrs(event)...)
}

// LogPersistenceFailure is the fallback record for an event the store rejected.
func (al *AuditLogger) LogPersistenceFailure(ctx context.Context, event AuditEvent, err error) {
	attrs := append(al.attrs(event),
		slog.Bool("persisted", false),
		slog.String("error", err.Error()),
	)
	al.logger.LogAttrs(ctx, slog.LevelError, "security event not persisted", attrs...)
}
