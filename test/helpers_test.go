//go:build integration
// +build integration

package test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/PBLC21/authcore"
	"github.com/PBLC21/authcore/password"
)

const (
	alicePassword = "correct horse battery staple"
	bobPassword   = "hunter2hunter2"
)

// memCreds is an in-memory credential store with write support.
type memCreds struct {
	mu      sync.RWMutex
	records map[string]authcore.UserRecord
}

func (s *memCreds) GetByIdentifier(_ context.Context, identifier string) (authcore.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[identifier]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrIdentityNotFound
	}
	return rec, nil
}

func (s *memCreds) GetRoles(_ context.Context, identity string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.Identity == identity {
			return append([]string(nil), rec.Roles...), nil
		}
	}
	return nil, authcore.ErrIdentityNotFound
}

func (s *memCreds) UpdatePasswordHash(_ context.Context, identity, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for identifier, rec := range s.records {
		if rec.Identity == identity {
			rec.PasswordHash = newHash
			s.records[identifier] = rec
			return nil
		}
	}
	return authcore.ErrIdentityNotFound
}

func (s *memCreds) setRoles(identifier string, roles []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[identifier]
	rec.Roles = roles
	s.records[identifier] = rec
}

// fastPasswordConfig keeps argon2 at its floors so the suite stays quick.
func fastPasswordConfig() authcore.PasswordConfig {
	return authcore.PasswordConfig{
		MemoryKB:    8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func hashPassword(t *testing.T, pass string) string {
	t.Helper()

	cfg := fastPasswordConfig()
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.MemoryKB,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	record, err := hasher.Hash(pass)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return record
}

func seedCreds(t *testing.T) *memCreds {
	t.Helper()
	return &memCreds{records: map[string]authcore.UserRecord{
		"alice@example.com": {
			Identity:     "u-alice",
			Identifier:   "alice@example.com",
			PasswordHash: hashPassword(t, alicePassword),
			Roles:        []string{"editor"},
		},
		"bob@example.com": {
			Identity:     "u-bob",
			Identifier:   "bob@example.com",
			PasswordHash: hashPassword(t, bobPassword),
			Roles:        []string{"viewer"},
		},
	}}
}

func testPolicy() ([]string, map[string][]string) {
	actions := []string{"article:read", "article:write", "admin:manage"}
	roles := map[string][]string{
		"viewer": {"article:read"},
		"editor": {"article:read", "article:write"},
		"admin":  {"article:read", "article:write", "admin:manage"},
	}
	return actions, roles
}

func testConfig(t *testing.T, mutate func(*authcore.Config)) authcore.Config {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	cfg := authcore.DefaultConfig()
	cfg.Token.PrivateKey = priv
	cfg.Token.PublicKey = pub
	cfg.Token.Issuer = "test"
	cfg.Password = fastPasswordConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

// newTestEngine builds an engine backed by miniredis. mutate may adjust the
// config before Build; pass nil to use the defaults.
func newTestEngine(t *testing.T, mutate func(*authcore.Config)) (*authcore.Engine, *miniredis.Miniredis, *memCreds) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	creds := seedCreds(t)
	actions, roles := testPolicy()

	engine, err := authcore.New().
		WithConfig(testConfig(t, mutate)).
		WithRedis(rdb).
		WithCredentialStore(creds).
		WithPolicy(actions, roles).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr, creds
}

// newTestEngineWithCreds builds an engine over an arbitrary credential
// store implementation.
func newTestEngineWithCreds(t *testing.T, creds authcore.CredentialStore, mutate func(*authcore.Config)) *authcore.Engine {
	t.Helper()

	_, rdb := newTestRedis(t)
	actions, roles := testPolicy()

	engine, err := authcore.New().
		WithConfig(testConfig(t, mutate)).
		WithRedis(rdb).
		WithCredentialStore(creds).
		WithPolicy(actions, roles).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}
