package rate

import (
	"errors"
	"fmt"
	"time"
)

// ErrLocked indicates the key is over its failure budget.
var ErrLocked = errors.New("attempt budget exceeded")

// ErrBackendUnavailable indicates the Redis backend is unreachable.
var ErrBackendUnavailable = errors.New("rate backend unavailable")

// LockedError wraps [ErrLocked] with the remaining cooldown.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("attempt budget exceeded, retry after %s", e.RetryAfter)
}

func (e *LockedError) Unwrap() error { return ErrLocked }
