package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is the poll interval while waiting for the commit lock.
const lockRetryDelay = 50 * time.Millisecond

// LockTimeoutError reports that the commit lock could not be acquired
// within the configured wait. Another process holds the lock; the
// commit was not attempted.
type LockTimeoutError struct {
	Path string
	Wait time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("commit lock %s not acquired within %s", e.Path, e.Wait)
}

// CommitLock serializes commits across processes using an advisory file
// lock next to the store file. Within one process the SQLite connection
// pool already serializes writers; the file lock extends that guarantee
// to multiple confman invocations sharing a store.
type CommitLock struct {
	lock *flock.Flock
	wait time.Duration
}

// NewCommitLock creates a lock for the store at the given path. The
// lock file lives beside the store file with a ".lock" suffix.
func NewCommitLock(storePath string, wait time.Duration) *CommitLock {
	return &CommitLock{
		lock: flock.New(storePath + ".lock"),
		wait: wait,
	}
}

// WithLock runs fn while holding the exclusive commit lock. Acquisition
// waits up to the configured duration and fails with LockTimeoutError
// rather than blocking indefinitely.
func (l *CommitLock) WithLock(ctx context.Context, fn func(context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	locked, err := l.lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("acquiring commit lock: %w", err)
	}
	if !locked {
		return &LockTimeoutError{Path: l.lock.Path(), Wait: l.wait}
	}
	defer l.lock.Unlock() //nolint:errcheck // Unlock on a held flock cannot meaningfully fail

	return fn(ctx)
}
