// Package logger provides structured, category-tagged logging for the crew.
// The call shape (InfoCF/WarnCF/ErrorCF/DebugCF taking a category, a message,
// and a field map) mirrors the teacher's hand-rolled logger; the backing
// implementation is zerolog so output is real structured JSON/console logging.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	base zerolog.Logger
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if v := os.Getenv("CREW_LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}
	var w io.Writer = os.Stderr
	if isTTY() {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	base = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// SetLevel overrides the global minimum log level at runtime.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	if parsed, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
		base = base.Level(parsed)
	}
}

func withFields(ev *zerolog.Event, category string, fields map[string]interface{}) *zerolog.Event {
	if category != "" {
		ev = ev.Str("category", category)
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	return ev
}

// InfoCF logs an info-level message tagged with a category and extra fields.
func InfoCF(category, message string, fields map[string]interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	withFields(base.Info(), category, fields).Msg(message)
}

// WarnCF logs a warn-level message tagged with a category and extra fields.
func WarnCF(category, message string, fields map[string]interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	withFields(base.Warn(), category, fields).Msg(message)
}

// ErrorCF logs an error-level message tagged with a category and extra fields.
func ErrorCF(category, message string, fields map[string]interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	withFields(base.Error(), category, fields).Msg(message)
}

// DebugCF logs a debug-level message tagged with a category and extra fields.
func DebugCF(category, message string, fields map[string]interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	withFields(base.Debug(), category, fields).Msg(message)
}

// Info logs a plain info-level message with no category.
func Info(message string) { InfoCF("", message, nil) }

// Warn logs a plain warn-level message with no category.
func Warn(message string) { WarnCF("", message, nil) }

// Error logs a plain error-level message with no category.
func Error(message string) { ErrorCF("", message, nil) }
