package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds lockout guard tuning parameters.
type Config struct {
	EnableOriginThrottle bool
	Threshold            int
	Window               time.Duration
	Cooldown             time.Duration
}

// Guard tracks failed authentication attempts per identifier and per origin
// using Redis counters.
type Guard struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a lockout [Guard] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Guard {
	return &Guard{
		redis:  redisClient,
		config: cfg,
	}
}

func identifierKey(identifier string) string {
	return "alg:id:" + identifier
}

func originKey(origin string) string {
	return "alg:or:" + origin
}

// Check reports whether the identifier+origin pair is within its failure
// budget. Returns a [*LockedError] (wrapping [ErrLocked]) when over budget.
func (g *Guard) Check(ctx context.Context, identifier, origin string) error {
	if err := g.checkCounter(ctx, identifierKey(identifier)); err != nil {
		return err
	}

	if g.config.EnableOriginThrottle && origin != "" {
		if err := g.checkCounter(ctx, originKey(origin)); err != nil {
			return err
		}
	}

	return nil
}

// RecordFailure records a failed attempt for the identifier+origin pair.
// Accounting must reflect definitive outcomes only, so the write runs on a
// context detached from caller cancellation.
func (g *Guard) RecordFailure(ctx context.Context, identifier, origin string) error {
	ctx = context.WithoutCancel(ctx)

	if err := g.incrementCounter(ctx, identifierKey(identifier)); err != nil {
		return err
	}

	if g.config.EnableOriginThrottle && origin != "" {
		if err := g.incrementCounter(ctx, originKey(origin)); err != nil {
			return err
		}
	}

	return nil
}

// RecordSuccess clears the failure history for the identifier+origin pair.
func (g *Guard) RecordSuccess(ctx context.Context, identifier, origin string) error {
	keys := []string{identifierKey(identifier)}
	if g.config.EnableOriginThrottle && origin != "" {
		keys = append(keys, originKey(origin))
	}

	if err := g.redis.Del(context.WithoutCancel(ctx), keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return nil
}

// Failures returns the current failure counter for an identifier. Missing
// keys return zero and do not reveal account existence.
func (g *Guard) Failures(ctx context.Context, identifier string) (int, error) {
	count, err := g.redis.Get(ctx, identifierKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (g *Guard) checkCounter(ctx context.Context, key string) error {
	count, err := g.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if count < int64(g.config.Threshold) {
		return nil
	}

	retryAfter := g.config.Cooldown
	if pttl, err := g.redis.PTTL(ctx, key).Result(); err == nil && pttl > 0 {
		retryAfter = pttl
	}

	return &LockedError{RetryAfter: retryAfter}
}

func (g *Guard) incrementCounter(ctx context.Context, key string) error {
	count, err := g.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// Fixed-window semantics: TTL starts at the first failure. Crossing the
	// threshold restarts the clock at the cooldown, which is what Check
	// reports as retry-after.
	if count == 1 {
		if err := g.redis.Expire(ctx, key, g.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	} else if count == int64(g.config.Threshold) && g.config.Cooldown > 0 {
		if err := g.redis.Expire(ctx, key, g.config.Cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	return nil
}
