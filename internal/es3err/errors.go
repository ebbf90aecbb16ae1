// Package es3err implements the three-level error taxonomy used by every
// task and remote operation: Fatal (non-retryable), Warn (retryable with
// backoff) and None (retryable, purely informational).
package es3err

import (
	"errors"
	"fmt"
)

// Level classifies how the agenda retry loop should treat an error.
type Level int

const (
	// LevelNone is an informational, retryable condition.
	LevelNone Level = iota
	// LevelWarn is a retryable condition that should back off before retrying.
	LevelWarn
	// LevelFatal is non-retryable; the task is abandoned immediately.
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "None"
	case LevelWarn:
		return "Warn"
	case LevelFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Error is the structured error returned by remote operations and tasks.
// It plays the role of the original's result_code_t/es3_exception pair.
type Error struct {
	Level   Level
	Message string
	// Context carries optional diagnostic fields: path, verb, HTTP status.
	Context map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Level, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Level, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the agenda's retry loop should attempt this
// task again (Warn and None are; Fatal is not).
func (e *Error) Retryable() bool { return e.Level != LevelFatal }

// With attaches a context field and returns the receiver for chaining.
func (e *Error) With(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

func newf(level Level, format string, args ...any) *Error {
	return &Error{Level: level, Message: fmt.Sprintf(format, args...)}
}

// Fatalf builds a non-retryable error.
func Fatalf(format string, args ...any) *Error { return newf(LevelFatal, format, args...) }

// Warnf builds a retryable, backed-off error.
func Warnf(format string, args ...any) *Error { return newf(LevelWarn, format, args...) }

// Infof builds a retryable, informational error.
func Infof(format string, args ...any) *Error { return newf(LevelNone, format, args...) }

// Wrap classifies an arbitrary Go error at the given level, preserving it
// as the cause. Used at syscall/HTTP boundaries where the underlying error
// has no opinion about retryability on its own (the original's libc_die
// idiom: any failed syscall becomes Fatal with a context string).
func Wrap(level Level, cause error, context string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Level: level, Message: context, cause: cause}
}

// AsEs3Error extracts an *Error from err, if any is present in its chain.
func AsEs3Error(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// ClassifyHTTPStatus classifies an HTTP response into a retry level:
// 5xx and connection resets map to Warn, 4xx other than 404 map to Fatal,
// 404 on HEAD maps to found=false (handled by the caller, not here).
func ClassifyHTTPStatus(verb string, path string, status int) *Error {
	switch {
	case status >= 500:
		return Warnf("server error %d for %s %s", status, verb, path).With("status", fmt.Sprint(status))
	case status == 404:
		return Fatalf("not found: %s %s", verb, path).With("status", "404")
	case status >= 400:
		return Fatalf("client error %d for %s %s", status, verb, path).With("status", fmt.Sprint(status))
	default:
		return nil
	}
}
