package logger

import "github.com/sirupsen/logrus"

// Level mirrors the handful of severities the engine actually emits.
// It exists as its own type (rather than a bare logrus.Level) so callers
// configuring the engine never need to import logrus directly.
type Level uint8

const (
	NilLevel Level = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return "nil"
	}
}

// ParseLevel accepts the usual lowercase spellings and defaults to InfoLevel
// for anything it doesn't recognize, matching the permissive config loading
// the rest of engineconf uses.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	case "nil", "none", "off":
		return NilLevel
	default:
		return InfoLevel
	}
}

func (l Level) logrus() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case FatalLevel:
		return logrus.FatalLevel
	case NilLevel:
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}
