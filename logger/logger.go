package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type logger struct {
	l *logrus.Logger
	e *logrus.Entry
}

// New returns a Logger writing structured lines to out at the given level.
// A nil out defaults to os.Stderr, matching the daemon's default of leaving
// stdout free for driver diagnostics.
func New(lvl Level, out io.Writer) Logger {
	if out == nil {
		out = os.Stderr
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl.logrus())
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &logger{l: l, e: logrus.NewEntry(l)}
}

func (o *logger) clone(e *logrus.Entry) *logger {
	return &logger{l: o.l, e: e}
}

func (o *logger) WithField(key string, value any) Logger {
	return o.clone(o.e.WithField(key, value))
}

func (o *logger) WithFields(f Fields) Logger {
	return o.clone(o.e.WithFields(logrus.Fields(f)))
}

func (o *logger) SetLevel(lvl Level) {
	o.l.SetLevel(lvl.logrus())
}

func (o *logger) GetLevel() Level {
	switch o.l.GetLevel() {
	case logrus.DebugLevel, logrus.TraceLevel:
		return DebugLevel
	case logrus.WarnLevel:
		return WarnLevel
	case logrus.ErrorLevel:
		return ErrorLevel
	case logrus.FatalLevel, logrus.PanicLevel:
		return FatalLevel
	default:
		return InfoLevel
	}
}

func (o *logger) Writer(lvl Level) io.Writer {
	return o.l.WriterLevel(lvl.logrus())
}

func entryOrNil(fields []Fields) logrus.Fields {
	if len(fields) == 0 {
		return nil
	}

	merged := make(logrus.Fields, len(fields[0]))
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}

	return merged
}

func (o *logger) Debug(msg string, fields ...Fields) {
	o.e.WithFields(entryOrNil(fields)).Debug(msg)
}

func (o *logger) Info(msg string, fields ...Fields) {
	o.e.WithFields(entryOrNil(fields)).Info(msg)
}

func (o *logger) Warn(msg string, fields ...Fields) {
	o.e.WithFields(entryOrNil(fields)).Warn(msg)
}

func (o *logger) Error(msg string, fields ...Fields) {
	o.e.WithFields(entryOrNil(fields)).Error(msg)
}

func (o *logger) Fatal(msg string, fields ...Fields) {
	o.e.WithFields(entryOrNil(fields)).Fatal(msg)
}
