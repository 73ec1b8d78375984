package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "pipeline.lock")
}

func TestAcquireCreatesLockFileWithOwnerInfo(t *testing.T) {
	lock := New(lockPath(t), 0, 0)
	if err := lock.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer lock.Release()

	data, err := os.ReadFile(lock.Path)
	if err != nil {
		t.Fatalf("read lock file failed: %v", err)
	}
	if !strings.HasPrefix(string(data), fmt.Sprintf("pid=%d time=", os.Getpid())) {
		t.Fatalf("unexpected lock content: %q", data)
	}
}

func TestAcquireTimesOutWhileHeld(t *testing.T) {
	path := lockPath(t)
	holder := New(path, 0, 0)
	if err := holder.Acquire(context.Background()); err != nil {
		t.Fatalf("holder acquire failed: %v", err)
	}
	defer holder.Release()

	contender := New(path, 50*time.Millisecond, 0)
	contender.pollInterval = 10 * time.Millisecond
	err := contender.Acquire(context.Background())
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
}

func TestAcquireTakesOverStaleLock(t *testing.T) {
	path := lockPath(t)
	if err := os.WriteFile(path, []byte("pid=1 time=0\n"), 0o644); err != nil {
		t.Fatalf("seed lock file failed: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("backdate lock file failed: %v", err)
	}

	lock := New(path, time.Second, time.Hour)
	lock.pollInterval = 10 * time.Millisecond
	if err := lock.Acquire(context.Background()); err != nil {
		t.Fatalf("expected stale takeover, got %v", err)
	}
	defer lock.Release()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file failed: %v", err)
	}
	if !strings.Contains(string(data), fmt.Sprintf("pid=%d", os.Getpid())) {
		t.Fatalf("lock not rewritten by takeover: %q", data)
	}
}

func TestAcquireIgnoresFreshLockWhenStaleDisabled(t *testing.T) {
	path := lockPath(t)
	if err := os.WriteFile(path, []byte("pid=1 time=0\n"), 0o644); err != nil {
		t.Fatalf("seed lock file failed: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("backdate lock file failed: %v", err)
	}

	lock := New(path, 50*time.Millisecond, 0)
	lock.pollInterval = 10 * time.Millisecond
	if err := lock.Acquire(context.Background()); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld with takeover disabled, got %v", err)
	}
}

func TestAcquireStopsOnContextCancellation(t *testing.T) {
	path := lockPath(t)
	holder := New(path, 0, 0)
	if err := holder.Acquire(context.Background()); err != nil {
		t.Fatalf("holder acquire failed: %v", err)
	}
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	contender := New(path, 0, 0)
	contender.pollInterval = 10 * time.Millisecond
	if err := contender.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}

func TestReleaseRemovesFileAndIsIdempotent(t *testing.T) {
	lock := New(lockPath(t), 0, 0)
	if err := lock.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := os.Stat(lock.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("lock file still present after release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second release failed: %v", err)
	}
}

func TestReleaseWithoutAcquireLeavesForeignLockAlone(t *testing.T) {
	path := lockPath(t)
	if err := os.WriteFile(path, []byte("pid=1 time=0\n"), 0o644); err != nil {
		t.Fatalf("seed lock file failed: %v", err)
	}
	lock := New(path, 0, 0)
	if err := lock.Release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("foreign lock file was removed: %v", err)
	}
}
