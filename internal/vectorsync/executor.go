package vectorsync

import (
	"context"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1500 * time.Millisecond
)

// EventContext is the opaque per-operation context (external id, remote file
// id) attached to retry events.
type EventContext map[string]any

// Executor applies remote operations with bounded exponential backoff. It
// holds no state between calls; every attempt emits a structured event so
// retries are observable.
type Executor struct {
	MaxRetries int
	BaseDelay  time.Duration
	Logger     EventLogger
}

func NewExecutor(maxRetries int, baseDelay time.Duration, logger EventLogger) *Executor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Executor{MaxRetries: maxRetries, BaseDelay: baseDelay, Logger: logger}
}

// Do runs op up to MaxRetries+1 times, sleeping BaseDelay * 2^attempt between
// attempts. The final failure is returned to the caller, who records it and
// continues with remaining work.
func (e *Executor) Do(ctx context.Context, action string, evctx EventContext, op func(context.Context) error) error {
	_, err := Retry(ctx, e, action, evctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Retry is Do for operations that produce a value.
func Retry[T any](ctx context.Context, e *Executor, action string, evctx EventContext, op func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		logEvent(e.Logger, "operation.retry", map[string]any{
			"action":  action,
			"attempt": attempt,
			"error":   err.Error(),
			"context": map[string]any(evctx),
		})
		if attempt >= e.MaxRetries {
			return zero, err
		}
		if waitErr := waitWithContext(ctx, e.backoffDelay(attempt)); waitErr != nil {
			return zero, waitErr
		}
	}
}

func (e *Executor) backoffDelay(attempt int) time.Duration {
	delay := e.BaseDelay
	if delay <= 0 {
		delay = DefaultBaseDelay
	}
	return delay * (1 << attempt)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
