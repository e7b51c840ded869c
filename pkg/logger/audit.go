package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventLogin           = "login"
	EventLogout          = "logout"
	EventAdminRevoked    = "admin_revoked"
	EventSessionRejected = "session_rejected"
	EventLooCreated      = "loo_created"
	EventLooUpdated      = "loo_updated"
	EventLooDeleted      = "loo_deleted"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security events to a dedicated slog stream
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger.With(slog.String("component", "audit")),
		now:    time.Now,
	}
}

// LogAuthAttempt records login, logout and session verification outcomes.
// Failures are logged at warn level.
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogDataChange records a mutation of the loo dataset
func (al *AuditLogger) LogDataChange(ctx context.Context, eventType, userID, resourceID string) {
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("audit_type", "data"),
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
		slog.String("resource_id", resourceID),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	)
}
