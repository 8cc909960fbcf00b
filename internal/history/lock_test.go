package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
)

func TestCommitLock_RunsUnderLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "confman.db")
	lock := NewCommitLock(path, time.Second)

	ran := false
	err := lock.WithLock(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock() error = %v", err)
	}
	if !ran {
		t.Error("WithLock() did not run the function")
	}

	// The lock is released afterwards: a second acquisition succeeds.
	if err := lock.WithLock(context.Background(), func(ctx context.Context) error {
		return nil
	}); err != nil {
		t.Errorf("WithLock() after release error = %v", err)
	}
}

func TestCommitLock_PropagatesError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "confman.db")
	lock := NewCommitLock(path, time.Second)

	want := errors.New("commit failed")
	err := lock.WithLock(context.Background(), func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("WithLock() error = %v, want the function's error", err)
	}
}

func TestCommitLock_Timeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "confman.db")

	// Hold the lock from "another process".
	holder := flock.New(path + ".lock")
	locked, err := holder.TryLock()
	if err != nil || !locked {
		t.Fatalf("holding lock: locked = %v, err = %v", locked, err)
	}
	defer holder.Unlock() //nolint:errcheck // Test cleanup

	lock := NewCommitLock(path, 100*time.Millisecond)
	err = lock.WithLock(context.Background(), func(ctx context.Context) error {
		t.Error("function must not run without the lock")
		return nil
	})

	var lte *LockTimeoutError
	if !errors.As(err, &lte) {
		t.Fatalf("WithLock() error = %v, want LockTimeoutError", err)
	}
	if lte.Wait != 100*time.Millisecond {
		t.Errorf("error wait = %v, want the configured wait", lte.Wait)
	}
}
