// Package qerr defines the logical error kinds surfaced by quantumgo
// regardless of which backend produced them.
package qerr

import (
	"errors"
	"fmt"
)

// Kind is the short textual code carried by every Error.
type Kind string

const (
	Validation     Kind = "ValidationError"
	Schema         Kind = "SchemaError"
	UnknownBackend Kind = "UnknownBackend"
	Capability     Kind = "CapabilityError"
	AcquireTimeout Kind = "AcquireTimeout"
	Cancelled      Kind = "Cancelled"
	Transport      Kind = "Transport"
	Backend        Kind = "BackendError"
	NotFound       Kind = "NotFound"
	Conflict       Kind = "Conflict"
)

// Error is the error type returned by every public quantumgo operation.
// It carries the logical Kind, the operation that failed, a human message,
// and, where applicable, the offending field or predicate.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	Field     string
	Predicate string
	Table     string
	Cause     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s (op=%s)", msg, e.Op)
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field=%s)", msg, e.Field)
	}
	if e.Predicate != "" {
		msg = fmt.Sprintf("%s (predicate=%s)", msg, e.Predicate)
	}
	if e.Table != "" {
		msg = fmt.Sprintf("%s (table=%s)", msg, e.Table)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target carries the same Kind, so callers can write
// errors.Is(err, qerr.NotFoundErr()) against a bare *Error of that kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs an Error of the given kind for the given operation.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an Error of the given kind, wrapping cause.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: cause.Error(), Cause: cause}
}

// WithField annotates the error with the offending field name.
func (e *Error) WithField(name string) *Error {
	e.Field = name
	return e
}

// WithPredicate annotates the error with the offending predicate fragment.
func (e *Error) WithPredicate(pred string) *Error {
	e.Predicate = pred
	return e
}

// WithTable annotates the error with the target table/collection.
func (e *Error) WithTable(table string) *Error {
	e.Table = table
	return e
}

// sentinels usable with errors.Is against a plain Kind comparison helper.
var (
	sentinelNotFound       = &Error{Kind: NotFound}
	sentinelConflict       = &Error{Kind: Conflict}
	sentinelCapability     = &Error{Kind: Capability}
	sentinelUnknownBackend = &Error{Kind: UnknownBackend}
	sentinelAcquireTimeout = &Error{Kind: AcquireTimeout}
	sentinelCancelled      = &Error{Kind: Cancelled}
	sentinelTransport      = &Error{Kind: Transport}
)

// IsKind reports whether err (or any error it wraps) carries kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// NotFoundErr, CapabilityErr, etc. are convenience sentinels for errors.Is.
func NotFoundErr() error       { return sentinelNotFound }
func ConflictErr() error       { return sentinelConflict }
func CapabilityErr() error     { return sentinelCapability }
func UnknownBackendErr() error { return sentinelUnknownBackend }
func AcquireTimeoutErr() error { return sentinelAcquireTimeout }
func CancelledErr() error      { return sentinelCancelled }
func TransportErr() error      { return sentinelTransport }
