package vectorsync

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

type captureLogger struct {
	lines []string
}

func (l *captureLogger) Printf(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func TestEventLoggerEmitsSingleLineJSON(t *testing.T) {
	printer := &captureLogger{}
	logger := NewEventLogger(printer)
	logger.Event("vector.upload", map[string]any{
		"externalId": "POL-1.json",
		"fileId":     "file_1",
	})
	if len(printer.lines) != 1 {
		t.Fatalf("expected one line, got %d", len(printer.lines))
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(printer.lines[0]), &payload); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", printer.lines[0], err)
	}
	if payload["event"] != "vector.upload" || payload["externalId"] != "POL-1.json" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestEventLoggerMarshalFallbackKeepsValues(t *testing.T) {
	printer := &captureLogger{}
	logger := NewEventLogger(printer)
	logger.Event("vector.error", map[string]any{
		"externalId":  "POL-1.json",
		"unencodable": func() {},
	})
	if len(printer.lines) != 1 {
		t.Fatalf("expected one line, got %d", len(printer.lines))
	}
	line := printer.lines[0]
	for _, want := range []string{"event=vector.error", "externalId=POL-1.json", "marshal_error="} {
		if !strings.Contains(line, want) {
			t.Fatalf("fallback line missing %q: %q", want, line)
		}
	}
}

func TestEventLoggerNilSafe(t *testing.T) {
	logEvent(nil, "anything", nil)
	logger := NewEventLogger(nil)
	logger.Event("anything", map[string]any{"k": "v"})
}
