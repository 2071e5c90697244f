package authcore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/PBLC21/authcore/token"
)

func TestLockoutErrorUnwrapsToTooManyAttempts(t *testing.T) {
	err := error(&LockoutError{Cooldown: 3 * time.Minute})

	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatal("LockoutError must wrap ErrTooManyAttempts")
	}

	cooldown, ok := RetryAfter(err)
	if !ok {
		t.Fatal("RetryAfter must recognize a lockout error")
	}
	if cooldown != 3*time.Minute {
		t.Fatalf("cooldown = %v, want 3m", cooldown)
	}
}

func TestRetryAfterSeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", &LockoutError{Cooldown: time.Minute})

	cooldown, ok := RetryAfter(wrapped)
	if !ok || cooldown != time.Minute {
		t.Fatalf("RetryAfter(wrapped) = (%v, %v)", cooldown, ok)
	}
}

func TestRetryAfterRejectsOtherErrors(t *testing.T) {
	if _, ok := RetryAfter(ErrInvalidCredentials); ok {
		t.Fatal("RetryAfter must reject non-lockout errors")
	}
	if _, ok := RetryAfter(nil); ok {
		t.Fatal("RetryAfter must reject nil")
	}
}

func TestNilEngineReturnsNotReady(t *testing.T) {
	var e *Engine
	ctx := t.Context()

	if _, err := e.Login(ctx, "id", "pass"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Login on nil engine: %v", err)
	}
	if _, err := e.ValidateAccess(ctx, "token"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("ValidateAccess on nil engine: %v", err)
	}
	if _, err := e.Refresh(ctx, "token"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Refresh on nil engine: %v", err)
	}
	if err := e.Logout(ctx, "token"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Logout on nil engine: %v", err)
	}
	if _, err := e.RevokeAll(ctx, "u-1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("RevokeAll on nil engine: %v", err)
	}
	if _, err := e.Authorize([]string{"r"}, "a"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Authorize on nil engine: %v", err)
	}
	e.Close()
	if e.AuditDropped() != 0 {
		t.Fatal("nil engine must report zero dropped audit events")
	}
}

func TestGrantIssuanceFailureStaysInTaxonomy(t *testing.T) {
	cfg := validTestConfig(t)

	tokens, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	e := &Engine{config: cfg, tokens: tokens}

	// An undecodable session ID makes refresh-token encoding fail; the
	// error must classify as a storage problem, not leak raw.
	_, err = e.issueGrant("u-1", []string{"viewer"}, "not a session id", [32]byte{})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestBuilderRejectsIncompleteWiring(t *testing.T) {
	cfg := validTestConfig(t)

	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected rejection without redis")
	}

	bad := cfg
	bad.Token.AccessTTL = 0
	if _, err := New().WithConfig(bad).Build(); err == nil {
		t.Fatal("expected rejection of invalid config")
	}
}
