package authcore

import (
	"context"
	"time"

	internalaudit "github.com/PBLC21/authcore/internal/audit"
)

// Audit event types emitted by the engine. Failure events carry the precise
// cause in Error even when the external error is deliberately uniform.
const (
	AuditLoginSuccess    = "login.success"
	AuditLoginFailure    = "login.failure"
	AuditLoginLocked     = "login.locked"
	AuditRefreshSuccess  = "refresh.success"
	AuditRefreshFailure  = "refresh.failure"
	AuditReplayDetected  = "refresh.replay"
	AuditLogout          = "session.logout"
	AuditLogoutAll       = "session.logout_all"
	AuditSessionSwept    = "session.sweep"
	AuditPasswordChanged = "password.changed"
)

func (e *Engine) emitAudit(ctx context.Context, eventType, identity, sessionID string, success bool, cause string, metadata map[string]string) {
	if e.audit == nil {
		return
	}

	e.audit.Emit(ctx, internalaudit.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Identity:  identity,
		SessionID: sessionID,
		Origin:    originFromContext(ctx),
		Success:   success,
		Error:     cause,
		Metadata:  metadata,
	})
}

// AuditDropped returns the number of audit events shed because the buffer
// was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}
