//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"testing"

	"github.com/PBLC21/authcore"
)

func TestLoginIssuesWorkingTokenPair(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	grant, err := engine.Login(ctx, "alice@example.com", alicePassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if grant.AccessToken == "" || grant.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if grant.Identity != "u-alice" {
		t.Fatalf("identity = %q, want u-alice", grant.Identity)
	}

	res, err := engine.ValidateAccess(ctx, grant.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if res.Identity != "u-alice" || res.SessionID != grant.SessionID {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Roles) != 1 || res.Roles[0] != "editor" {
		t.Fatalf("roles = %v, want [editor]", res.Roles)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	_, wrongPass := error(nil), error(nil)
	_, wrongPass = engine.Login(ctx, "alice@example.com", "not the password")
	_, unknownUser := engine.Login(ctx, "nobody@example.com", "whatever pass")

	if !errors.Is(wrongPass, authcore.ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", wrongPass)
	}
	if !errors.Is(unknownUser, authcore.ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", unknownUser)
	}
	// Same sentinel, same message: nothing distinguishes the two cases.
	if wrongPass.Error() != unknownUser.Error() {
		t.Fatal("failure modes must be indistinguishable to callers")
	}
}

func TestLoginMalformedStoredRecordFailsClosed(t *testing.T) {
	engine, _, creds := newTestEngine(t, nil)
	ctx := context.Background()

	creds.mu.Lock()
	rec := creds.records["alice@example.com"]
	rec.PasswordHash = "corrupted-not-phc"
	creds.records["alice@example.com"] = rec
	creds.mu.Unlock()

	_, err := engine.Login(ctx, "alice@example.com", alicePassword)
	if !errors.Is(err, authcore.ErrInvalidCredentials) {
		t.Fatalf("expected uniform ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthorization(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	grant, err := engine.Login(ctx, "alice@example.com", alicePassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	allowed, err := engine.CheckPermission(ctx, grant.AccessToken, "article:write")
	if err != nil {
		t.Fatalf("CheckPermission failed: %v", err)
	}
	if !allowed {
		t.Fatal("editor must hold article:write")
	}

	allowed, err = engine.CheckPermission(ctx, grant.AccessToken, "admin:manage")
	if err != nil {
		t.Fatalf("CheckPermission failed: %v", err)
	}
	if allowed {
		t.Fatal("editor must not hold admin:manage")
	}

	if _, err := engine.CheckPermission(ctx, grant.AccessToken, "article:delete"); err == nil {
		t.Fatal("unregistered action must be an error, not a denial")
	}
}

func TestValidateAccessRejectsTamperedToken(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	grant, err := engine.Login(ctx, "alice@example.com", alicePassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	tampered := grant.AccessToken[:len(grant.AccessToken)-2] + "xx"
	_, err = engine.ValidateAccess(ctx, tampered)
	if !errors.Is(err, authcore.ErrSignatureMismatch) && !errors.Is(err, authcore.ErrMalformedToken) {
		t.Fatalf("tampered token: %v", err)
	}

	if _, err := engine.ValidateAccess(ctx, "garbage"); !errors.Is(err, authcore.ErrMalformedToken) {
		t.Fatalf("garbage token: %v", err)
	}
}

func TestHashUpgradeOnLogin(t *testing.T) {
	engine, _, creds := newTestEngine(t, func(cfg *authcore.Config) {
		// Stronger than the seeded records, so login should rehash.
		cfg.Password.MemoryKB = 16 * 1024
		cfg.Password.Time = 2
	})
	ctx := context.Background()

	before := creds.records["alice@example.com"].PasswordHash

	if _, err := engine.Login(ctx, "alice@example.com", alicePassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	creds.mu.RLock()
	after := creds.records["alice@example.com"].PasswordHash
	creds.mu.RUnlock()

	if before == after {
		t.Fatal("expected the stored hash to be upgraded on login")
	}

	// And the upgraded record still authenticates.
	if _, err := engine.Login(ctx, "alice@example.com", alicePassword); err != nil {
		t.Fatalf("Login after upgrade failed: %v", err)
	}
}
