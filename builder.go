package authcore

import (
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	internalaudit "github.com/PBLC21/authcore/internal/audit"
	internalmetrics "github.com/PBLC21/authcore/internal/metrics"
	"github.com/PBLC21/authcore/internal/rate"
	"github.com/PBLC21/authcore/password"
	"github.com/PBLC21/authcore/policy"
	"github.com/PBLC21/authcore/session"
	"github.com/PBLC21/authcore/token"
)

// Builder assembles an [Engine]. Redis, a credential store, and a policy
// are mandatory; everything else falls back to [DefaultConfig].
type Builder struct {
	config      Config
	configSet   bool
	redis       redis.UniversalClient
	credentials CredentialStore
	actions     []string
	roles       map[string][]string
	sink        AuditSink
}

// New starts a builder chain.
func New() *Builder {
	return &Builder{}
}

// WithConfig replaces the default configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	b.configSet = true
	return b
}

// WithRedis sets the Redis client backing the session registry and the
// lockout guard.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the host's credential store.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithPolicy sets the authorization domain: the action names and the
// role-to-actions definitions compiled into the policy snapshot.
func (b *Builder) WithPolicy(actions []string, roles map[string][]string) *Builder {
	b.actions = actions
	b.roles = roles
	return b
}

// WithAuditSink sets the destination for audit events. Without a sink,
// events are dispatched to a no-op sink (drop counting still applies).
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// Build validates the configuration, wires all subsystems, and returns a
// ready [Engine]. The engine owns a copy of the config and the audit
// dispatcher; callers must Close it when done.
func (b *Builder) Build() (*Engine, error) {
	cfg := DefaultConfig()
	if b.configSet {
		cfg = cloneConfig(b.config)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if len(b.actions) == 0 || len(b.roles) == 0 {
		return nil, errors.New("policy actions and roles are required")
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.MemoryKB,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	pol, err := policy.New(b.actions, b.roles)
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(
		b.redis,
		cfg.Session.KeyPrefix,
		cfg.Session.RefreshTTL,
		cfg.Session.TombstoneTTL,
	)

	var guard *rate.Guard
	if cfg.Lockout.Enabled {
		guard = rate.New(b.redis, rate.Config{
			EnableOriginThrottle: cfg.Lockout.PerOrigin,
			Threshold:            cfg.Lockout.Threshold,
			Window:               cfg.Lockout.Window,
			Cooldown:             cfg.Lockout.Cooldown,
		})
	}

	// Verified against a throwaway record when the identifier is unknown, so
	// lookup misses cost the same as password mismatches.
	decoyHash, err := hasher.Hash("decoy-" + uuid.NewString())
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:      cfg,
		hasher:      hasher,
		tokens:      tokens,
		sessions:    sessions,
		guard:       guard,
		policy:      pol,
		credentials: b.credentials,
		decoyHash:   decoyHash,
		metrics: internalmetrics.New(internalmetrics.Config{
			Enabled:       cfg.Metrics.Enabled,
			EnableLatency: cfg.Metrics.EnableLatencyHistograms,
		}),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.sink),
	}

	return e, nil
}
