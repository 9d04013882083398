package logger

import (
	"io"
	"log"

	"github.com/hashicorp/go-hclog"
)

// HCLog adapts a Logger to hclog.Logger, for handing to driver or
// in-process-client plug-ins written against HashiCorp's logging
// interface instead of this package's own.
func HCLog(l Logger, name string) hclog.Logger {
	return &hcAdapter{l: l.WithField("component", name), name: name}
}

type hcAdapter struct {
	l    Logger
	name string
}

func (h *hcAdapter) Log(level hclog.Level, msg string, args ...any) {
	switch level {
	case hclog.Trace, hclog.Debug:
		h.l.Debug(msg, argsToFields(args))
	case hclog.Warn:
		h.l.Warn(msg, argsToFields(args))
	case hclog.Error:
		h.l.Error(msg, argsToFields(args))
	default:
		h.l.Info(msg, argsToFields(args))
	}
}

func (h *hcAdapter) Trace(msg string, args ...any) { h.l.Debug(msg, argsToFields(args)) }
func (h *hcAdapter) Debug(msg string, args ...any) { h.l.Debug(msg, argsToFields(args)) }
func (h *hcAdapter) Info(msg string, args ...any)  { h.l.Info(msg, argsToFields(args)) }
func (h *hcAdapter) Warn(msg string, args ...any)  { h.l.Warn(msg, argsToFields(args)) }
func (h *hcAdapter) Error(msg string, args ...any) { h.l.Error(msg, argsToFields(args)) }

func (h *hcAdapter) IsTrace() bool { return true }
func (h *hcAdapter) IsDebug() bool { return true }
func (h *hcAdapter) IsInfo() bool  { return true }
func (h *hcAdapter) IsWarn() bool  { return true }
func (h *hcAdapter) IsError() bool { return true }

func (h *hcAdapter) ImpliedArgs() []interface{} { return nil }

func (h *hcAdapter) With(args ...any) hclog.Logger {
	f := argsToFields(args)
	l := h.l
	for k, v := range f {
		l = l.WithField(k, v)
	}
	return &hcAdapter{l: l, name: h.name}
}

func (h *hcAdapter) Name() string { return h.name }

func (h *hcAdapter) Named(name string) hclog.Logger {
	return &hcAdapter{l: h.l.WithField("component", name), name: name}
}

func (h *hcAdapter) ResetNamed(name string) hclog.Logger {
	return h.Named(name)
}

func (h *hcAdapter) SetLevel(level hclog.Level) {}

func (h *hcAdapter) GetLevel() hclog.Level { return hclog.Info }

func (h *hcAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(h.l.Writer(InfoLevel), "", 0)
}

func (h *hcAdapter) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return h.l.Writer(InfoLevel)
}

func argsToFields(args []any) Fields {
	f := make(Fields, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		f[key] = args[i+1]
	}
	return f
}
