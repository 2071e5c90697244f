//go:build integration
// +build integration

package test

import (
	"context"
	"testing"
	"time"

	"github.com/PBLC21/authcore"
)

func TestSweepExpiredCleansIndex(t *testing.T) {
	engine, mr, _ := newTestEngine(t, func(cfg *authcore.Config) {
		cfg.Session.RefreshTTL = time.Hour
		cfg.Session.AbsoluteTTL = time.Hour
	})
	ctx := context.Background()

	if _, err := engine.Login(ctx, "alice@example.com", alicePassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", alicePassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	count, err := engine.ActiveSessionCount(ctx, "u-alice")
	if err != nil {
		t.Fatalf("ActiveSessionCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("active sessions = %d, want 2", count)
	}

	// Let the rows expire by TTL; the index members dangle until swept.
	mr.FastForward(2 * time.Hour)

	swept, err := engine.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if swept != 2 {
		t.Fatalf("swept = %d, want 2", swept)
	}

	count, err = engine.ActiveSessionCount(ctx, "u-alice")
	if err != nil {
		t.Fatalf("ActiveSessionCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("active sessions after sweep = %d, want 0", count)
	}
}

func TestSweepExpiredNoGarbage(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.Login(ctx, "alice@example.com", alicePassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	swept, err := engine.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if swept != 0 {
		t.Fatalf("swept = %d, want 0 for a live session", swept)
	}

	count, err := engine.ActiveSessionCount(ctx, "u-alice")
	if err != nil {
		t.Fatalf("ActiveSessionCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("live session lost: count = %d", count)
	}
}
