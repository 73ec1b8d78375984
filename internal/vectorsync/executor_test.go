package vectorsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingLogger captures events for assertions.
type recordingLogger struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	name   string
	fields map[string]any
}

func (l *recordingLogger) Event(name string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, recordedEvent{name: name, fields: fields})
}

func (l *recordingLogger) named(name string) []recordedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []recordedEvent
	for _, event := range l.events {
		if event.name == name {
			out = append(out, event)
		}
	}
	return out
}

func TestExecutorRetriesUntilSuccess(t *testing.T) {
	logger := &recordingLogger{}
	exec := NewExecutor(3, time.Millisecond, logger)

	attempts := 0
	err := exec.Do(context.Background(), "upload", EventContext{"externalId": "doc.json"}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	retries := logger.named("operation.retry")
	if len(retries) != 2 {
		t.Fatalf("expected 2 retry events, got %d", len(retries))
	}
	if retries[0].fields["action"] != "upload" {
		t.Fatalf("unexpected retry event: %+v", retries[0])
	}
}

func TestExecutorStopsAfterMaxRetries(t *testing.T) {
	logger := &recordingLogger{}
	exec := NewExecutor(2, time.Millisecond, logger)

	attempts := 0
	boom := errors.New("permanent")
	err := exec.Do(context.Background(), "delete", nil, func(context.Context) error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected final error returned, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected MaxRetries+1 attempts, got %d", attempts)
	}
	if len(logger.named("operation.retry")) != 3 {
		t.Fatalf("expected one event per failed attempt")
	}
}

func TestRetryReturnsValue(t *testing.T) {
	exec := NewExecutor(1, time.Millisecond, nil)
	calls := 0
	value, err := Retry(context.Background(), exec, "upload", nil, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "file_123", nil
	})
	if err != nil || value != "file_123" {
		t.Fatalf("expected recovered value, got %q err=%v", value, err)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	exec := NewExecutor(5, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- exec.Do(ctx, "upload", nil, func(context.Context) error {
			attempts++
			return errors.New("transient")
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("retry loop did not observe cancellation")
	}
	if attempts != 1 {
		t.Fatalf("expected no further attempts after cancel, got %d", attempts)
	}
}

func TestBackoffDelayDoubles(t *testing.T) {
	exec := NewExecutor(3, 100*time.Millisecond, nil)
	if exec.backoffDelay(0) != 100*time.Millisecond {
		t.Fatalf("unexpected base delay: %v", exec.backoffDelay(0))
	}
	if exec.backoffDelay(1) != 200*time.Millisecond {
		t.Fatalf("unexpected second delay: %v", exec.backoffDelay(1))
	}
	if exec.backoffDelay(2) != 400*time.Millisecond {
		t.Fatalf("unexpected third delay: %v", exec.backoffDelay(2))
	}
}
