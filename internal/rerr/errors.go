// Package rerr defines the structured error taxonomy shared across the
// core: every failure surfaced to a caller (wire protocol, log line, exit
// code) carries one of the kinds below.
package rerr

import (
	"errors"
	"fmt"
)

// Kind is the closed error taxonomy.
type Kind string

const (
	KindParseError         Kind = "ParseError"
	KindIoError            Kind = "IoError"
	KindUniqueViolation    Kind = "UniqueViolation"
	KindIncompatibleIndex  Kind = "IncompatibleIndex"
	KindInvalidQuery       Kind = "InvalidQuery"
	KindBusy               Kind = "Busy"
	KindWatcherUnavailable Kind = "WatcherUnavailable"
	KindInternal           Kind = "Internal"
)

// Error is the structured error type threaded through the core.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so call
// sites can write errors.Is(err, rerr.New(rerr.KindBusy, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindInternal for any
// error not produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func ParseErr(message string, cause error) *Error { return Wrap(KindParseError, message, cause) }
func IoErr(message string, cause error) *Error     { return Wrap(KindIoError, message, cause) }
func UniqueViolation(message string) *Error        { return New(KindUniqueViolation, message) }
func IncompatibleIndex(message string) *Error      { return New(KindIncompatibleIndex, message) }
func InvalidQuery(message string) *Error           { return New(KindInvalidQuery, message) }
func Busy(message string) *Error                   { return New(KindBusy, message) }
func WatcherUnavailable(message string, cause error) *Error {
	return Wrap(KindWatcherUnavailable, message, cause)
}
func Internal(message string, cause error) *Error { return Wrap(KindInternal, message, cause) }
