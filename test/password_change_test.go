//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"testing"

	"github.com/PBLC21/authcore"
)

const newPassword = "a brand new passphrase"

func TestChangePassword(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	grant, err := engine.Login(ctx, "alice@example.com", alicePassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := engine.ChangePassword(ctx, "alice@example.com", alicePassword, newPassword); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	// Old password is dead, new one works.
	if _, err := engine.Login(ctx, "alice@example.com", alicePassword); !errors.Is(err, authcore.ErrInvalidCredentials) {
		t.Fatalf("old password: %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", newPassword); err != nil {
		t.Fatalf("new password: %v", err)
	}

	// Existing sessions died with the old password.
	if _, err := engine.Refresh(ctx, grant.RefreshToken); !errors.Is(err, authcore.ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	err := engine.ChangePassword(ctx, "alice@example.com", "wrong current", newPassword)
	if !errors.Is(err, authcore.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePasswordRejectsReuse(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	err := engine.ChangePassword(ctx, "alice@example.com", alicePassword, alicePassword)
	if !errors.Is(err, authcore.ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
}

func TestChangePasswordRejectsWeakPassword(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	err := engine.ChangePassword(ctx, "alice@example.com", alicePassword, "short")
	if !errors.Is(err, authcore.ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}

	// The failed change must not have touched the credential.
	if _, err := engine.Login(ctx, "alice@example.com", alicePassword); err != nil {
		t.Fatalf("Login failed after rejected change: %v", err)
	}
}

// readOnlyCreds wraps memCreds hiding the writer interface.
type readOnlyCreds struct {
	inner *memCreds
}

func (s readOnlyCreds) GetByIdentifier(ctx context.Context, identifier string) (authcore.UserRecord, error) {
	return s.inner.GetByIdentifier(ctx, identifier)
}

func (s readOnlyCreds) GetRoles(ctx context.Context, identity string) ([]string, error) {
	return s.inner.GetRoles(ctx, identity)
}

func TestChangePasswordRequiresWriter(t *testing.T) {
	engine := newTestEngineWithCreds(t, readOnlyCreds{inner: seedCreds(t)}, nil)

	err := engine.ChangePassword(context.Background(), "alice@example.com", alicePassword, newPassword)
	if !errors.Is(err, authcore.ErrCredentialWriteUnsupported) {
		t.Fatalf("expected ErrCredentialWriteUnsupported, got %v", err)
	}
}
