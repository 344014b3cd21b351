package locks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker keeps locks in process memory. Used when no Redis is configured
// and in tests.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	clock func() time.Time
}

type localEntry struct {
	token   uuid.UUID
	expires time.Time
}

type localLock struct {
	locker *LocalLocker
	key    string
	token  uuid.UUID
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]localEntry{}, clock: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrLockNotAcquired
	}
	token := uuid.New()
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLock{locker: l, key: key, token: token}, nil
}

func (lock *localLock) Release(_ context.Context) error {
	l := lock.locker
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.held[lock.key]
	if !ok || e.token != lock.token {
		return ErrLockNotHeld
	}
	delete(l.held, lock.key)
	return nil
}
