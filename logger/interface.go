// Package logger wraps logrus behind a small, engine-shaped facade so the
// rest of the tree never imports a concrete logging library directly.
package logger

import (
	"io"
)

// Fields is a set of structured key/value pairs attached to a log entry.
type Fields map[string]any

// Logger is the interface every engine component logs through.
type Logger interface {
	Debug(msg string, fields ...Fields)
	Info(msg string, fields ...Fields)
	Warn(msg string, fields ...Fields)
	Error(msg string, fields ...Fields)
	Fatal(msg string, fields ...Fields)

	// WithField and WithFields return a derived Logger that always carries
	// the given structured context on every line it emits.
	WithField(key string, value any) Logger
	WithFields(f Fields) Logger

	SetLevel(lvl Level)
	GetLevel() Level

	// Writer exposes an io.Writer that logs each line at lvl, for handing to
	// things that only know how to write to a *log.Logger (e.g. net/http).
	Writer(lvl Level) io.Writer
}
