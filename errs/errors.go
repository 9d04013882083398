// Package errs provides the request-layer error kinds of spec §7 as a small
// code+trace+chain error type, grounded in the teacher's errors package but
// trimmed to what the engine's serialized request plane actually needs: no
// pool of collected errors, no web-framework integration.
package errs

import (
	"errors"
	"fmt"
	"runtime"
)

// Error is a Code-classified error carrying the call site it was created at
// and an optional parent (the lower-level error it wraps).
type Error interface {
	error
	Code() Code
	Status() int32
	Parent() error
	GetTrace() string
	Unwrap() error
}

type ers struct {
	c Code
	m string
	p error
	f runtime.Frame
}

func captureFrame() runtime.Frame {
	pc := make([]uintptr, 1)
	// skip: Callers, captureFrame, newErs/newErsf, Code.Error/Errorf
	if n := runtime.Callers(4, pc); n == 0 {
		return runtime.Frame{}
	}
	frame, _ := runtime.CallersFrames(pc).Next()
	return frame
}

func newErs(c Code, msg string, parent error) *ers {
	return &ers{c: c, m: msg, p: parent, f: captureFrame()}
}

func newErsf(c Code, parent error, format string, args ...any) *ers {
	return &ers{c: c, m: fmt.Sprintf(format, args...), p: parent, f: captureFrame()}
}

func (e *ers) Error() string {
	if e.p != nil {
		return fmt.Sprintf("%s: %s", e.m, e.p.Error())
	}
	return e.m
}

func (e *ers) Code() Code { return e.c }

func (e *ers) Status() int32 { return e.c.Status() }

func (e *ers) Parent() error { return e.p }

func (e *ers) Unwrap() error { return e.p }

func (e *ers) GetTrace() string {
	if e.f.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d (%s)", e.f.File, e.f.Line, e.f.Function)
}

// Is supports errors.Is(err, someCode.Error(nil)) by comparing codes, the
// way spec §7 treats error kind as the identity that matters to callers.
func (e *ers) Is(target error) bool {
	var t *ers
	if errors.As(target, &t) {
		return t.c == e.c
	}
	return false
}

// StatusOf returns the reply-envelope status for any error: the Code's
// status if err is (or wraps) an Error of a known code, else a generic
// negative sentinel. A non-nil error never yields zero.
func StatusOf(err error) int32 {
	if err == nil {
		return 0
	}
	var e Error
	if errors.As(err, &e) && e.Code() != UnknownError {
		return e.Status()
	}
	return -1
}

// CodeOf extracts the Code from err, or UnknownError if err is not an Error.
func CodeOf(err error) Code {
	var e Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return UnknownError
}
