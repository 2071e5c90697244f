package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/PBLC21/authcore/internal"
	internalaudit "github.com/PBLC21/authcore/internal/audit"
	internalmetrics "github.com/PBLC21/authcore/internal/metrics"
	"github.com/PBLC21/authcore/internal/rate"
	"github.com/PBLC21/authcore/password"
	"github.com/PBLC21/authcore/policy"
	"github.com/PBLC21/authcore/session"
	"github.com/PBLC21/authcore/token"
)

// Engine is the authentication core. Construct via [Builder.Build]; all
// methods are safe for concurrent use.
type Engine struct {
	config      Config
	hasher      password.Hasher
	tokens      *token.Manager
	sessions    *session.Store
	guard       *rate.Guard
	policy      *policy.Policy
	credentials CredentialStore
	decoyHash   string
	metrics     *internalmetrics.Metrics
	audit       *internalaudit.Dispatcher
}

// Login authenticates an identifier/password pair and opens a new session.
//
// All authentication failures surface as [ErrInvalidCredentials] regardless
// of cause (unknown identifier, wrong password, or an undecodable stored
// record) so callers cannot probe which identifiers exist. The precise
// cause is recorded on the audit stream. Lockout rejections surface as a
// [*LockoutError] wrapping [ErrTooManyAttempts].
//
// Lockout accounting reflects definitive outcomes only: a context canceled
// before the guard check fails with [ErrStorageUnavailable] and records
// nothing, while an attempt that reaches a verdict is counted even if the
// caller's context has since been canceled.
func (e *Engine) Login(ctx context.Context, identifier, pass string) (*Grant, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	origin := originFromContext(ctx)

	if err := e.checkGuard(ctx, identifier, origin); err != nil {
		return nil, err
	}

	rec, err := e.credentials.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			// Burn a verification against the decoy record so a lookup miss
			// costs the same as a password mismatch.
			_, _ = e.hasher.Verify(pass, e.decoyHash)
			return nil, e.loginRejected(ctx, identifier, origin, "", "unknown identifier")
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	match, err := e.hasher.Verify(pass, rec.PasswordHash)
	if err != nil {
		return nil, e.loginRejected(ctx, identifier, origin, rec.Identity, "malformed credential record")
	}
	if !match {
		return nil, e.loginRejected(ctx, identifier, origin, rec.Identity, "password mismatch")
	}

	if e.guard != nil {
		_ = e.guard.RecordSuccess(ctx, identifier, origin)
	}

	upgraded := e.maybeUpgradeHash(ctx, rec, pass)

	grant, err := e.openSession(ctx, rec.Identity, rec.Roles)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.metrics.Inc(MetricSessionCreated)

	var meta map[string]string
	if upgraded {
		meta = map[string]string{"hash_upgraded": "true"}
	}
	e.emitAudit(ctx, AuditLoginSuccess, rec.Identity, grant.SessionID, true, "", meta)

	return grant, nil
}

// ValidateAccess verifies an access token and returns the identity and role
// snapshot it was issued under. Pure hot path: signature and expiry checks
// only, no storage access. Tokens issued before a revocation stay valid
// until they expire; AccessTTL is that staleness bound.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (AuthResult, error) {
	if e == nil || e.tokens == nil {
		return AuthResult{}, ErrEngineNotReady
	}

	start := time.Now()
	claims, err := e.tokens.Parse(accessToken)
	e.metrics.Observe(MetricValidateLatency, time.Since(start))

	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			return AuthResult{}, ErrExpiredToken
		case errors.Is(err, token.ErrSignatureInvalid):
			return AuthResult{}, ErrSignatureMismatch
		default:
			return AuthResult{}, ErrMalformedToken
		}
	}

	return AuthResult{
		Identity:  claims.Identity,
		SessionID: claims.SID,
		Roles:     claims.Roles,
	}, nil
}

// Refresh redeems a refresh token for a fresh token pair, rotating the
// refresh secret atomically. Exactly one concurrent redemption of the same
// token wins; redeeming an already-rotated token is treated as replay, the
// whole session lineage is revoked, and [ErrReplayDetected] is returned.
//
// Roles are re-read from the credential store at each refresh, so a role
// change propagates no later than one refresh plus one AccessTTL.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	sid, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefreshFailure, "", "", false, "undecodable refresh token", nil)
		return nil, ErrRefreshInvalid
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	sess, err := e.sessions.RotateRefreshHash(
		ctx,
		sid,
		internal.HashRefreshSecret(secret),
		internal.HashRefreshSecret(nextSecret),
		time.Now(),
	)
	if err != nil {
		return nil, e.refreshRejected(ctx, sid, err)
	}

	roles, err := e.credentials.GetRoles(ctx, sess.Identity)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			_, _ = e.sessions.Revoke(ctx, sid)
			e.metrics.Inc(MetricRefreshFailure)
			e.metrics.Inc(MetricSessionRevoked)
			e.emitAudit(ctx, AuditRefreshFailure, sess.Identity, sid, false, "identity removed", nil)
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	grant, err := e.issueGrant(sess.Identity, roles, sid, nextSecret)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditRefreshSuccess, sess.Identity, sid, true, "", nil)

	return grant, nil
}

// Logout revokes the session a refresh token belongs to. Idempotent:
// logging out an already-revoked or expired session succeeds quietly. The
// token's secret must still match the session, so a forged token cannot
// revoke someone else's session.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	sid, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return ErrRefreshInvalid
	}

	sess, err := e.sessions.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if sess.Revoked {
		return nil
	}

	provided := internal.HashRefreshSecret(secret)
	if subtle.ConstantTimeCompare(provided[:], sess.RefreshHash[:]) != 1 {
		return ErrRefreshInvalid
	}

	return e.revokeSession(ctx, sess.Identity, sid, AuditLogout)
}

// LogoutByAccessToken revokes the session named by a valid access token.
// The token itself stays verifiable until it expires.
func (e *Engine) LogoutByAccessToken(ctx context.Context, accessToken string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	res, err := e.ValidateAccess(ctx, accessToken)
	if err != nil {
		return err
	}

	return e.revokeSession(ctx, res.Identity, res.SessionID, AuditLogout)
}

// RevokeAll revokes every live session of an identity and returns how many
// were revoked. Outstanding access tokens expire on their own within
// AccessTTL.
func (e *Engine) RevokeAll(ctx context.Context, identity string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	revoked, err := e.sessions.RevokeAllForIdentity(ctx, identity)
	if err != nil {
		return revoked, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	e.metrics.Inc(MetricLogoutAll)
	e.metrics.Add(MetricSessionRevoked, uint64(revoked))
	e.emitAudit(ctx, AuditLogoutAll, identity, "", true, "",
		map[string]string{"sessions_revoked": fmt.Sprintf("%d", revoked)})

	return revoked, nil
}

// CheckPermission verifies an access token and reports whether its role
// snapshot grants the action. An unregistered action is an error, not a
// denial.
func (e *Engine) CheckPermission(ctx context.Context, accessToken, action string) (bool, error) {
	res, err := e.ValidateAccess(ctx, accessToken)
	if err != nil {
		return false, err
	}

	return e.Authorize(res.Roles, action)
}

// Authorize reports whether any of the given roles grants the action under
// the current policy snapshot. Roles not defined by the snapshot contribute
// nothing.
func (e *Engine) Authorize(roles []string, action string) (bool, error) {
	if e == nil || e.policy == nil {
		return false, ErrEngineNotReady
	}

	allowed, err := e.policy.Authorize(roles, action)
	if err != nil {
		return false, err
	}
	if !allowed {
		e.metrics.Inc(MetricAuthorizeDenied)
	}
	return allowed, nil
}

// RolesDefined verifies that every role name is defined by the active
// policy snapshot, returning [ErrRoleUnknown] for the first that is not.
func (e *Engine) RolesDefined(roles []string) error {
	if e == nil || e.policy == nil {
		return ErrEngineNotReady
	}
	for _, role := range roles {
		if !e.policy.HasRole(role) {
			return fmt.Errorf("%w: %s", ErrRoleUnknown, role)
		}
	}
	return nil
}

// ReloadRoles recompiles the role definitions against the existing action
// registry and swaps the policy snapshot atomically. In-flight checks
// finish against the snapshot they started with.
func (e *Engine) ReloadRoles(roles map[string][]string) error {
	if e == nil || e.policy == nil {
		return ErrEngineNotReady
	}
	return e.policy.Reload(roles)
}

// ChangePassword verifies the current password and replaces the stored
// hash. All sessions of the identity are revoked afterwards, so stolen
// refresh tokens die with the old password. Requires the credential store
// to implement [CredentialWriter].
func (e *Engine) ChangePassword(ctx context.Context, identifier, currentPass, newPass string) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}

	writer, ok := e.credentials.(CredentialWriter)
	if !ok {
		return ErrCredentialWriteUnsupported
	}

	origin := originFromContext(ctx)
	if err := e.checkGuard(ctx, identifier, origin); err != nil {
		return err
	}

	rec, err := e.credentials.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			_, _ = e.hasher.Verify(currentPass, e.decoyHash)
			return e.loginRejected(ctx, identifier, origin, "", "unknown identifier")
		}
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	match, err := e.hasher.Verify(currentPass, rec.PasswordHash)
	if err != nil {
		return e.loginRejected(ctx, identifier, origin, rec.Identity, "malformed credential record")
	}
	if !match {
		return e.loginRejected(ctx, identifier, origin, rec.Identity, "password mismatch")
	}

	if newPass == currentPass {
		return ErrPasswordReuse
	}

	newHash, err := e.hasher.Hash(newPass)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	if err := writer.UpdatePasswordHash(ctx, rec.Identity, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if e.guard != nil {
		if err := e.guard.RecordSuccess(ctx, identifier, origin); err != nil {
			log.Print("authcore: lockout counter reset failed after password change")
		}
	}

	revoked, err := e.sessions.RevokeAllForIdentity(ctx, rec.Identity)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	e.metrics.Add(MetricSessionRevoked, uint64(revoked))

	e.emitAudit(ctx, AuditPasswordChanged, rec.Identity, "", true, "",
		map[string]string{"sessions_revoked": fmt.Sprintf("%d", revoked)})

	return nil
}

// SweepExpired removes expired session rows and stale index entries.
// Intended for a periodic background job, not request paths.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	swept, err := e.sessions.SweepExpired(ctx, 500)
	if err != nil {
		return swept, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	e.metrics.Add(MetricSessionSwept, uint64(swept))
	if swept > 0 {
		e.emitAudit(ctx, AuditSessionSwept, "", "", true, "",
			map[string]string{"sessions_swept": fmt.Sprintf("%d", swept)})
	}

	return swept, nil
}

// ActiveSessionCount returns the number of live sessions for an identity.
func (e *Engine) ActiveSessionCount(ctx context.Context, identity string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	count, err := e.sessions.ActiveSessionCount(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return count, nil
}

// Metrics returns the engine's metrics instance for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// Ping reports Redis availability and round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.Ping(ctx)
}

// Close drains and stops the audit dispatcher. The engine must not be used
// afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

func (e *Engine) checkGuard(ctx context.Context, identifier, origin string) error {
	if e.guard == nil {
		return nil
	}

	err := e.guard.Check(ctx, identifier, origin)
	if err == nil {
		return nil
	}

	var locked *rate.LockedError
	if errors.As(err, &locked) {
		e.metrics.Inc(MetricLoginLockedOut)
		e.emitAudit(ctx, AuditLoginLocked, "", "", false, "cooldown active", nil)
		return &LockoutError{Cooldown: locked.RetryAfter}
	}

	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

// loginRejected does the shared bookkeeping for an authentication failure
// and returns the uniform external error. cause goes to the audit stream
// only.
func (e *Engine) loginRejected(ctx context.Context, identifier, origin, identity, cause string) error {
	if e.guard != nil {
		_ = e.guard.RecordFailure(ctx, identifier, origin)
	}
	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, AuditLoginFailure, identity, "", false, cause, nil)
	return ErrInvalidCredentials
}

func (e *Engine) refreshRejected(ctx context.Context, sid string, err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefreshFailure, "", sid, false, "session not found", nil)
		return ErrSessionNotFound
	case errors.Is(err, session.ErrExpiredSession):
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefreshFailure, "", sid, false, "session expired", nil)
		return ErrSessionNotFound
	case errors.Is(err, session.ErrRevokedSession):
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefreshFailure, "", sid, false, "session revoked", nil)
		return ErrSessionRevoked
	case errors.Is(err, session.ErrHashMismatch):
		// The rotation script has already tombstoned the lineage.
		e.metrics.Inc(MetricRefreshFailure)
		e.metrics.Inc(MetricReplayDetected)
		e.metrics.Inc(MetricSessionRevoked)
		e.emitAudit(ctx, AuditReplayDetected, "", sid, false, "stale refresh token redeemed", nil)
		return ErrReplayDetected
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}

func (e *Engine) openSession(ctx context.Context, identity string, roles []string) (*Grant, error) {
	// Entropy failures are as transient and retryable as a registry outage,
	// so they share its classification.
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	now := time.Now()
	sess := &session.Session{
		SchemaVersion: session.CurrentSchemaVersion,
		SessionID:     sid.String(),
		Identity:      identity,
		Roles:         roles,
		RefreshHash:   internal.HashRefreshSecret(secret),
		CreatedAt:     now.Unix(),
		RotatedAt:     now.Unix(),
		ExpiresAt:     now.Add(e.config.Session.AbsoluteTTL).Unix(),
	}

	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return e.issueGrant(identity, roles, sess.SessionID, secret)
}

func (e *Engine) issueGrant(identity string, roles []string, sessionID string, secret [32]byte) (*Grant, error) {
	access, err := e.tokens.Issue(identity, roles, sessionID)
	if err != nil {
		return nil, err
	}

	refresh, err := internal.EncodeRefreshToken(sessionID, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return &Grant{
		AccessToken:     access,
		RefreshToken:    refresh,
		Identity:        identity,
		SessionID:       sessionID,
		Roles:           roles,
		AccessExpiresAt: time.Now().Add(e.config.Token.AccessTTL),
	}, nil
}

func (e *Engine) revokeSession(ctx context.Context, identity, sessionID, eventType string) error {
	revoked, err := e.sessions.Revoke(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if revoked {
		e.metrics.Inc(MetricLogout)
		e.metrics.Inc(MetricSessionRevoked)
		e.emitAudit(ctx, eventType, identity, sessionID, true, "", nil)
	}

	return nil
}

// maybeUpgradeHash rehashes the password under the current cost parameters
// when the stored record is weaker and the store accepts writes. Best
// effort: a failed upgrade never fails the login.
func (e *Engine) maybeUpgradeHash(ctx context.Context, rec UserRecord, pass string) bool {
	upgrader, ok := e.hasher.(interface {
		NeedsUpgrade(encodedRecord string) (bool, error)
	})
	if !ok {
		return false
	}
	writer, ok := e.credentials.(CredentialWriter)
	if !ok {
		return false
	}

	needed, err := upgrader.NeedsUpgrade(rec.PasswordHash)
	if err != nil || !needed {
		return false
	}

	newHash, err := e.hasher.Hash(pass)
	if err != nil {
		log.Print("authcore: password hash upgrade generation failed")
		return false
	}
	if err := writer.UpdatePasswordHash(ctx, rec.Identity, newHash); err != nil {
		log.Print("authcore: password hash upgrade update failed")
		return false
	}

	return true
}
