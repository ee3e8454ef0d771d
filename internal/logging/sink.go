package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const tableTimeFormat = "2006-01-02 15:04:05"

// Appender persists one structured log row.
type Appender interface {
	AppendLog(timestamp, function, level, message, stacktrace string) error
}

// TableSink is a zerolog writer that appends each event at or above MinLevel
// to a logs table (timestamp, function_name, level, message, stacktrace).
type TableSink struct {
	store    Appender
	MinLevel zerolog.Level
	now      func() time.Time
}

// NewTableSink creates a sink writing info and above into store.
func NewTableSink(store Appender) *TableSink {
	return &TableSink{store: store, MinLevel: zerolog.InfoLevel, now: time.Now}
}

// Write implements io.Writer for events without a known level.
func (s *TableSink) Write(p []byte) (int, error) {
	return s.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel implements zerolog.LevelWriter.
func (s *TableSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level != zerolog.NoLevel && level < s.MinLevel {
		return len(p), nil
	}

	var event map[string]any
	if err := json.Unmarshal(p, &event); err != nil {
		return len(p), nil
	}

	function := field(event, "func")
	if function == "" {
		function = field(event, "component")
	}
	levelName := field(event, zerolog.LevelFieldName)
	if levelName == "" {
		levelName = level.String()
	}

	err := s.store.AppendLog(
		s.now().Format(tableTimeFormat),
		function,
		levelName,
		field(event, zerolog.MessageFieldName),
		stacktrace(event),
	)
	if err != nil {
		// The table is best effort; keep the event visible on stderr.
		fmt.Fprintf(os.Stderr, "log sink failed: %v: %s", err, p)
	}
	return len(p), nil
}

// stacktrace joins the error with the stack captured by Stack(), when any.
func stacktrace(event map[string]any) string {
	errText := field(event, zerolog.ErrorFieldName)
	stack := field(event, zerolog.ErrorStackFieldName)
	switch {
	case stack == "":
		return errText
	case errText == "":
		return stack
	default:
		return errText + "\n" + stack
	}
}

func field(event map[string]any, key string) string {
	v, ok := event[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
