// Package logging configures zerolog for the CLI and mirrors log events into
// the store's logs table.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup builds the process logger: a console writer on stderr plus any extra
// sinks. It also installs the result as the zerolog global logger.
func Setup(level string, verbose bool, sinks ...io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.ErrorStackMarshaler = MarshalStack

	// Stacks go to the logs table only.
	console := zerolog.ConsoleWriter{
		Out:           os.Stderr,
		TimeFormat:    "15:04:05",
		FieldsExclude: []string{zerolog.ErrorStackFieldName},
	}
	writers := []io.Writer{console}
	writers = append(writers, sinks...)

	lvl := ParseLevel(level)
	if verbose {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp()
	if verbose {
		ctx = ctx.Caller()
	}
	logger := ctx.Logger()
	log.Logger = logger

	if !levelKnown(level) {
		logger.Warn().Str("level", level).Msg("invalid log level, using info")
	}
	return logger
}

// MarshalStack records the goroutine stack at the logging call. Setup
// installs it as zerolog.ErrorStackMarshaler, so events built with
// Stack().Err(err) carry a "stack" field.
func MarshalStack(err error) interface{} {
	return string(debug.Stack())
}

// ParseLevel parses a level name case-insensitively; unknown or empty names
// resolve to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func levelKnown(level string) bool {
	if strings.TrimSpace(level) == "" {
		return true
	}
	_, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	return err == nil
}

// Nop returns a disabled logger, handy as a default for optional loggers.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
