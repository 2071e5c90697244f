package authcore

import (
	"errors"
	"time"
)

// TokenConfig controls access-token issuance and verification.
type TokenConfig struct {
	// AccessTTL is the access-token lifetime. It doubles as the staleness
	// bound: a role change is fully visible once every token issued before
	// the change has expired.
	AccessTTL     time.Duration
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// SessionConfig controls the session registry.
type SessionConfig struct {
	// RefreshTTL bounds how long a session survives without a refresh.
	RefreshTTL time.Duration
	// AbsoluteTTL caps total session lifetime regardless of activity.
	AbsoluteTTL time.Duration
	// TombstoneTTL bounds how long revoked rows linger so replayed or
	// post-logout refreshes can be answered with "revoked" rather than
	// "not found".
	TombstoneTTL time.Duration
	KeyPrefix    string
}

// PasswordConfig holds argon2id cost parameters. MemoryKB is in KiB.
type PasswordConfig struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// LockoutConfig controls the failed-attempt guard.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Window    time.Duration
	Cooldown  time.Duration
	// PerOrigin additionally throttles by caller origin, so a distributed
	// guessing campaign against many identifiers still trips the guard.
	PerOrigin bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events when the buffer is full instead of blocking
	// the auth path. Dropped counts are tracked.
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Config is the full engine configuration. Zero value is not usable; start
// from [DefaultConfig].
type Config struct {
	Token    TokenConfig
	Session  SessionConfig
	Password PasswordConfig
	Lockout  LockoutConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// DefaultConfig returns the recommended production defaults. Token keys
// must still be supplied.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     5 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RefreshTTL:   7 * 24 * time.Hour,
			AbsoluteTTL:  7 * 24 * time.Hour,
			TombstoneTTL: 24 * time.Hour,
			KeyPrefix:    "ac",
		},
		Password: PasswordConfig{
			MemoryKB:    64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Lockout: LockoutConfig{
			Enabled:   true,
			Threshold: 5,
			Window:    15 * time.Minute,
			Cooldown:  15 * time.Minute,
			PerOrigin: true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 {
		return errors.New("token access TTL must be positive")
	}
	if c.Token.SigningMethod != "ed25519" && c.Token.SigningMethod != "hs256" {
		return errors.New("token signing method must be ed25519 or hs256")
	}
	if len(c.Token.PrivateKey) == 0 {
		return errors.New("token private key is required")
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Token.PublicKey) == 0 {
		return errors.New("token public key is required for ed25519")
	}
	if c.Session.RefreshTTL <= 0 {
		return errors.New("session refresh TTL must be positive")
	}
	if c.Session.AbsoluteTTL < c.Session.RefreshTTL {
		return errors.New("session absolute TTL must be >= refresh TTL")
	}
	if c.Session.KeyPrefix == "" {
		return errors.New("session key prefix is required")
	}
	if c.Token.AccessTTL >= c.Session.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if c.Lockout.Enabled {
		if c.Lockout.Threshold <= 0 {
			return errors.New("lockout threshold must be positive")
		}
		if c.Lockout.Window <= 0 {
			return errors.New("lockout window must be positive")
		}
		if c.Lockout.Cooldown <= 0 {
			return errors.New("lockout cooldown must be positive")
		}
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be positive")
	}
	return nil
}

// cloneConfig deep-copies key material so the engine owns its config.
func cloneConfig(c Config) Config {
	out := c
	out.Token.PrivateKey = append([]byte(nil), c.Token.PrivateKey...)
	out.Token.PublicKey = append([]byte(nil), c.Token.PublicKey...)
	return out
}
