// Package locks serializes commands on one import package or conflict
// across service instances.
package locks

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
)

var (
	// ErrLockNotAcquired is returned when a lock is held by someone else
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock that expired or was taken over
	ErrLockNotHeld = errors.New("lock not held")
)

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive, expiring locks by key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// WithLock runs fn while holding key. A held lock is reported as a 409 so
// callers can retry once the other command finishes.
func WithLock(ctx context.Context, l Locker, key string, ttl time.Duration, fn func() error) error {
	lock, err := l.Acquire(ctx, key, ttl)
	if errors.Is(err, ErrLockNotAcquired) {
		return httperror.NewHTTPErrorf(http.StatusConflict, "%s is being modified by another request", key)
	}
	if err != nil {
		return err
	}
	defer lock.Release(context.WithoutCancel(ctx))

	return fn()
}

func PackageKey(id string) string  { return "import-package:" + id }
func ConflictKey(id string) string { return "conflict:" + id }
