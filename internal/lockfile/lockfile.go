// Package lockfile provides cross-process mutual exclusion for pipeline
// runs via an exclusively-created lock file. A lock older than StaleAfter
// is assumed to belong to a crashed run and is taken over.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrLockHeld is returned when the lock cannot be acquired before Timeout.
var ErrLockHeld = errors.New("lockfile: lock held by another process")

// Lock guards a resource with an exclusively-created file at Path.
// The zero value is not usable; set Path.
type Lock struct {
	Path       string
	Timeout    time.Duration // zero means wait forever
	StaleAfter time.Duration // zero disables stale takeover

	// test hooks
	pollInterval time.Duration
	now          func() time.Time

	acquired bool
}

func New(path string, timeout, staleAfter time.Duration) *Lock {
	return &Lock{Path: path, Timeout: timeout, StaleAfter: staleAfter}
}

// Acquire blocks until the lock is held, the timeout elapses, or ctx is
// cancelled. An existing lock file older than StaleAfter is removed and
// acquisition retried.
func (l *Lock) Acquire(ctx context.Context) error {
	poll := l.pollInterval
	if poll <= 0 {
		poll = time.Second
	}
	var deadline time.Time
	if l.Timeout > 0 {
		deadline = l.clock().Add(l.Timeout)
	}
	for {
		ok, err := l.tryAcquire()
		if err != nil {
			return err
		}
		if ok {
			l.acquired = true
			return nil
		}
		if l.isStale() {
			// Takeover races with the holder's own release; both paths
			// tolerate a missing file.
			if err := os.Remove(l.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("lockfile: remove stale %s: %w", l.Path, err)
			}
			continue
		}
		if !deadline.IsZero() && !l.clock().Before(deadline) {
			return fmt.Errorf("%w: %s", ErrLockHeld, l.Path)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Release removes the lock file if this process holds it. Safe to call
// more than once.
func (l *Lock) Release() error {
	if !l.acquired {
		return nil
	}
	l.acquired = false
	if err := os.Remove(l.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("lockfile: release %s: %w", l.Path, err)
	}
	return nil
}

func (l *Lock) tryAcquire() (bool, error) {
	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("lockfile: create %s: %w", l.Path, err)
	}
	fmt.Fprintf(f, "pid=%d time=%d\n", os.Getpid(), l.clock().Unix())
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("lockfile: write %s: %w", l.Path, err)
	}
	return true, nil
}

func (l *Lock) isStale() bool {
	if l.StaleAfter <= 0 {
		return false
	}
	info, err := os.Stat(l.Path)
	if err != nil {
		return false
	}
	return l.clock().Sub(info.ModTime()) > l.StaleAfter
}

func (l *Lock) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}
