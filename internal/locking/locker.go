// Package locking provides doctor-scoped mutual exclusion across the
// check-and-write sections of scheduling operations.
package locking

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Locker serialises work on a key. Lock blocks until the key is free or ctx
// is done; the returned release func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

var (
	// ErrNotHeld is reported when a release finds the lock already taken over.
	ErrNotHeld = errors.New("locking: lock not held")
	// ErrWaitTimeout is returned when a bounded wait gives up on a busy key.
	ErrWaitTimeout = errors.New("locking: timed out waiting for lock")
)

// WithWaitTimeout bounds how long Lock on inner may wait. A caller context
// that ends first still reports its own error.
func WithWaitTimeout(inner Locker, wait time.Duration) Locker {
	if wait <= 0 {
		return inner
	}
	return &boundedLocker{inner: inner, wait: wait}
}

type boundedLocker struct {
	inner Locker
	wait  time.Duration
}

func (b *boundedLocker) Lock(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, b.wait)
	defer cancel()
	release, err := b.inner.Lock(waitCtx, key)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s after %s", ErrWaitTimeout, key, b.wait)
	}
	return release, err
}
