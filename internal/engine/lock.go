package engine

import (
	"context"
	"sync/atomic"
	"time"
)

// CommitLock serializes the prepare-to-commit window of root units of work
// sharing a repository. The lock is taken at prepare and released after
// commit, rollback, close or a failed prepare.
type CommitLock interface {
	Lock(ctx context.Context) error
	Unlock()
}

// IgnoreLock lets any number of units of work commit concurrently. Use it
// when the store detects conflicts itself.
func IgnoreLock() CommitLock {
	return ignoreLock{}
}

type ignoreLock struct{}

func (ignoreLock) Lock(context.Context) error { return nil }
func (ignoreLock) Unlock()                    {}

// FailFastLock fails prepare with CONCURRENT_COMMIT while another unit of
// work holds the lock.
func FailFastLock() CommitLock {
	return &failFastLock{}
}

type failFastLock struct {
	held atomic.Bool
}

func (l *failFastLock) Lock(context.Context) error {
	if !l.held.CompareAndSwap(false, true) {
		return newError(ErrCodeConcurrentCommit, "another unit of work is committing")
	}
	return nil
}

func (l *failFastLock) Unlock() {
	l.held.Store(false)
}

// SerializeLock makes prepare wait for the lock. A zero timeout waits
// until the context is done; otherwise waiting longer than timeout fails
// with LOCK_TIMEOUT.
func SerializeLock(timeout time.Duration) CommitLock {
	return &serializeLock{
		sem:     make(chan struct{}, 1),
		timeout: timeout,
	}
}

type serializeLock struct {
	sem     chan struct{}
	timeout time.Duration
}

func (l *serializeLock) Lock(ctx context.Context) error {
	var expired <-chan time.Time
	if l.timeout > 0 {
		timer := time.NewTimer(l.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-expired:
		return newError(ErrCodeLockTimeout, "commit lock not acquired within %s", l.timeout)
	case <-ctx.Done():
		return &ModelError{Code: ErrCodeLockTimeout, Message: "commit lock wait cancelled", Err: ctx.Err()}
	}
}

func (l *serializeLock) Unlock() {
	select {
	case <-l.sem:
	default:
	}
}
