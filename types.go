package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/PBLC21/authcore/internal/audit"
	internalmetrics "github.com/PBLC21/authcore/internal/metrics"
)

// UserRecord is the credential record the host's [CredentialStore] returns
// for an identifier. PasswordHash is a PHC-encoded string carrying its own
// algorithm tag, salt, and cost parameters; authcore never sees or stores a
// plaintext credential.
type UserRecord struct {
	Identity     string
	Identifier   string
	PasswordHash string
	Roles        []string
}

// CredentialStore is the interface callers must implement to integrate
// authcore with their user database. It covers credential lookup by login
// identifier and role lookup by identity; both are read-only.
//
// Implementations should return [ErrIdentityNotFound] (or an error wrapping
// it) for unknown identifiers, and wrap transport failures so the engine can
// surface them as [ErrStorageUnavailable].
type CredentialStore interface {
	GetByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	GetRoles(ctx context.Context, identity string) ([]string, error)
}

// CredentialWriter is an optional extension of [CredentialStore]. Stores
// that implement it enable [Engine.ChangePassword] and hash cost upgrades
// on login.
type CredentialWriter interface {
	UpdatePasswordHash(ctx context.Context, identity string, newHash string) error
}

// AuthResult is returned by [Engine.ValidateAccess]. Roles is the snapshot
// embedded in the token at issuance time, not a live read.
type AuthResult struct {
	Identity  string
	SessionID string
	Roles     []string
}

// Grant is the result of a successful [Engine.Login] or [Engine.Refresh]:
// a fresh token pair plus the identity and role snapshot they were issued
// under.
type Grant struct {
	AccessToken     string
	RefreshToken    string
	Identity        string
	SessionID       string
	Roles           []string
	AccessExpiresAt time.Time
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a counter or histogram in the in-process metrics
// system.
type MetricID = internalmetrics.MetricID

const (
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess = internalmetrics.MetricLoginSuccess
	// MetricLoginFailure counts rejected logins (bad credentials, unknown
	// identifier, malformed records).
	MetricLoginFailure = internalmetrics.MetricLoginFailure
	// MetricLoginLockedOut counts logins rejected by the lockout guard.
	MetricLoginLockedOut = internalmetrics.MetricLoginLockedOut
	// MetricRefreshSuccess counts successful refresh rotations.
	MetricRefreshSuccess = internalmetrics.MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure = internalmetrics.MetricRefreshFailure
	// MetricReplayDetected counts refresh replays. Any nonzero value is a
	// security signal worth alerting on.
	MetricReplayDetected = internalmetrics.MetricReplayDetected
	// MetricSessionCreated counts sessions created at login.
	MetricSessionCreated = internalmetrics.MetricSessionCreated
	// MetricSessionRevoked counts sessions revoked for any reason.
	MetricSessionRevoked = internalmetrics.MetricSessionRevoked
	// MetricSessionSwept counts sessions removed by SweepExpired.
	MetricSessionSwept = internalmetrics.MetricSessionSwept
	// MetricLogout counts single-session logouts.
	MetricLogout = internalmetrics.MetricLogout
	// MetricLogoutAll counts revoke-all operations.
	MetricLogoutAll = internalmetrics.MetricLogoutAll
	// MetricAuthorizeDenied counts permission checks that answered false.
	MetricAuthorizeDenied = internalmetrics.MetricAuthorizeDenied
	// MetricValidateLatency is the ValidateAccess latency histogram.
	MetricValidateLatency = internalmetrics.MetricValidateLatency
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}

// MetricNames maps every [MetricID] to its stable export name. Exporters
// use these as metric name suffixes.
func MetricNames() map[MetricID]string {
	return map[MetricID]string{
		MetricLoginSuccess:    "login_success_total",
		MetricLoginFailure:    "login_failure_total",
		MetricLoginLockedOut:  "login_locked_out_total",
		MetricRefreshSuccess:  "refresh_success_total",
		MetricRefreshFailure:  "refresh_failure_total",
		MetricReplayDetected:  "replay_detected_total",
		MetricSessionCreated:  "session_created_total",
		MetricSessionRevoked:  "session_revoked_total",
		MetricSessionSwept:    "session_swept_total",
		MetricLogout:          "logout_total",
		MetricLogoutAll:       "logout_all_total",
		MetricAuthorizeDenied: "authorize_denied_total",
		MetricValidateLatency: "validate_access_latency",
	}
}

// LatencyBucketBounds returns the histogram bucket upper bounds. The final
// bucket is unbounded.
func LatencyBucketBounds() []time.Duration {
	return internalmetrics.BucketBounds[:]
}
