package vectorsync

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Logger matches the stdlib log.Logger surface so callers can plug in
// anything with a Printf.
type Logger interface {
	Printf(format string, args ...any)
}

// EventLogger receives one structured event per observable action. Events are
// the only side channel out of the planners and the executor.
type EventLogger interface {
	Event(name string, fields map[string]any)
}

type jsonEventLogger struct {
	printer Logger
}

// NewEventLogger emits events as single-line JSON objects of the form
// {"event": name, ...fields} through the given printer.
func NewEventLogger(printer Logger) EventLogger {
	return &jsonEventLogger{printer: printer}
}

func (l *jsonEventLogger) Event(name string, fields map[string]any) {
	if l == nil || l.printer == nil {
		return
	}
	payload := map[string]any{"event": name}
	for key, value := range fields {
		payload[key] = value
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// Fall back to a readable line rather than dropping the event.
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", key, fields[key]))
		}
		l.printer.Printf("event=%s %s marshal_error=%v", name, strings.Join(parts, " "), err)
		return
	}
	l.printer.Printf("%s", data)
}

func logEvent(logger EventLogger, name string, fields map[string]any) {
	if logger == nil {
		return
	}
	logger.Event(name, fields)
}
