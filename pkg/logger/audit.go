package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventLogin          = "login"
	EventLockout        = "lockout"
	EventMFAChallenge   = "mfa_challenge"
	EventMFAVerify      = "mfa_verify"
	EventMFAEnabled     = "mfa_enabled"
	EventMFADisabled    = "mfa_disabled"
	EventPasswordChange = "password_change"
	EventPasswordReset  = "password_reset"
	EventRegister       = "register"
	EventLogout         = "logout"
	EventBan            = "ban"
	EventUnban          = "unban"
	EventRoleChange     = "role_change"
	EventUnlock         = "unlock"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	AccountID     string
	Email         string
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security events as structured "audit" records. Events
// are only logged, never stored.
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger, now: time.Now}
}

// Log records event at info level on success and warn otherwise
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if al == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}
	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
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

// LogAdminAction records an action taken by actorID against targetID
func (al *AuditLogger) LogAdminAction(ctx context.Context, eventType, actorID, targetID string, metadata map[string]string) {
	md := map[string]string{"actor_id": actorID}
	for k, v := range metadata {
		md[k] = v
	}
	al.Log(ctx, AuditEvent{
		EventType: eventType,
		AccountID: targetID,
		Success:   true,
		Metadata:  md,
	})
}
