package logger

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// Audit event types
const (
	EventLogin          = "login"
	EventLogout         = "logout"
	EventLockout        = "lockout"
	EventSystemLockdown = "system_lockdown"
	EventSessionCreated = "session_created"
	EventSessionRotated = "session_rotated"
	EventSessionDemoted = "session_demoted"
	EventPasswordReset  = "password_reset"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        int64
	SessionID     int64
	Identifier    string // As submitted; masked before logging when it is an email
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security events with a stable attribute set. In production the
// user agent is redacted.
type AuditLogger struct {
	logger *slog.Logger
	env    string
}

func NewAuditLogger(logger *slog.Logger, env string) *AuditLogger {
	return &AuditLogger{logger: logger, env: env}
}

// Log emits event at info on success and warn otherwise
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if al == nil || al.logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != 0 {
		attrs = append(attrs, slog.String("user_id", strconv.FormatInt(event.UserID, 10)))
	}
	if event.SessionID != 0 {
		attrs = append(attrs, slog.Int64("session_id", event.SessionID))
	}
	if event.Identifier != "" {
		attrs = append(attrs, slog.String("identifier", SanitizedIdentifier(event.Identifier)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, RedactedAttr("user_agent", event.UserAgent, al.env))
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
