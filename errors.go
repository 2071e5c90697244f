package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is the uniform authentication failure returned to
	// external callers. Unknown identifier, wrong password, and malformed
	// stored records all map onto it so callers cannot enumerate accounts;
	// the precise cause is retained in the audit stream.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTooManyAttempts is returned when the lockout guard rejects an
	// attempt. Use [RetryAfter] to read the remaining cooldown.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrExpiredToken is returned for a well-formed, correctly signed access
	// token whose expiry instant has passed.
	ErrExpiredToken = errors.New("token expired")
	// ErrMalformedToken is returned for a token that cannot be parsed.
	ErrMalformedToken = errors.New("malformed token")
	// ErrSignatureMismatch is returned for a parseable token whose signature
	// does not verify against the configured key.
	ErrSignatureMismatch = errors.New("token signature mismatch")
	// ErrSessionRevoked is returned when an operation targets a session that
	// was revoked by logout, revoke-all, or replay detection.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrReplayDetected is returned when a refresh token that was already
	// rotated is redeemed again. The session is revoked as a side effect and
	// the event is surfaced to the audit stream as a security event.
	ErrReplayDetected = errors.New("refresh token replay detected")
	// ErrSessionNotFound is returned when a session no longer exists (it was
	// swept, or its tombstone expired).
	ErrSessionNotFound = errors.New("session not found")
	// ErrIdentityNotFound is returned by credential-store lookups. Login
	// never returns it externally; see ErrInvalidCredentials.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrStorageUnavailable wraps I/O failures from the session registry or
	// the credential store. Callers may retry with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrRefreshInvalid is returned for refresh tokens that fail decoding.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRoleUnknown is returned when a user record names a role absent from
	// the active policy snapshot.
	ErrRoleUnknown = errors.New("role not present in policy")
	// ErrPasswordPolicy is returned when a new password fails the hasher's
	// minimum requirements.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a password change submits the
	// current password as the new one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrCredentialWriteUnsupported is returned by ChangePassword when the
	// configured CredentialStore does not implement CredentialWriter.
	ErrCredentialWriteUnsupported = errors.New("credential store is read-only")
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or incompletely built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockoutError wraps [ErrTooManyAttempts] with the remaining cooldown for
// the throttled key.
type LockoutError struct {
	Cooldown time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.Cooldown)
}

func (e *LockoutError) Unwrap() error { return ErrTooManyAttempts }

// RetryAfter extracts the remaining lockout cooldown from an error returned
// by [Engine.Login]. ok is false when err is not a lockout rejection.
func RetryAfter(err error) (cooldown time.Duration, ok bool) {
	var le *LockoutError
	if errors.As(err, &le) {
		return le.Cooldown, true
	}
	return 0, false
}
