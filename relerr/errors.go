// Package relerr defines the error taxonomy shared by every relmap
// package. A single Error type carries an error kind and the record type
// it concerns instead of a per-type error hierarchy.
package relerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for programmatic handling.
type Kind int

const (
	// KindConfiguration marks a malformed or contradictory relation
	// descriptor. Always raised before any query executes.
	KindConfiguration Kind = iota
	// KindUnknownRelation marks an eager-load name with no matching
	// relation on the record type. Raised before any query executes.
	KindUnknownRelation
	// KindNotFound marks a require-mode fetch that returned zero rows.
	KindNotFound
	// KindStore wraps an opaque failure from the underlying store. The
	// cause is preserved unchanged and never retried here.
	KindStore
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindUnknownRelation:
		return "unknown relation"
	case KindNotFound:
		return "not found"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Error is the one error type produced by relmap.
type Error struct {
	Kind       Kind
	RecordType string // registered type name, may be empty
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.RecordType != "" {
		return fmt.Sprintf("relmap: %s: %s: %s", e.Kind, e.RecordType, msg)
	}
	return fmt.Sprintf("relmap: %s: %s", e.Kind, msg)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Configuration returns a configuration-kind error.
func Configuration(recordType, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, RecordType: recordType, Message: fmt.Sprintf(format, args...)}
}

// UnknownRelation returns an unknown-relation error for the named relation.
func UnknownRelation(recordType, relation string) *Error {
	return &Error{Kind: KindUnknownRelation, RecordType: recordType, Message: fmt.Sprintf("no relation %q", relation)}
}

// NotFound returns a not-found error for the record type.
func NotFound(recordType string) *Error {
	return &Error{Kind: KindNotFound, RecordType: recordType, Message: "no matching rows"}
}

// Store wraps an underlying store failure, preserving the cause unchanged.
func Store(recordType string, cause error) *Error {
	return &Error{Kind: KindStore, RecordType: recordType, Cause: cause}
}

// IsKind reports whether err is (or wraps) a relmap Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return IsKind(err, KindConfiguration) }

// IsUnknownRelation reports whether err is an unknown-relation error.
func IsUnknownRelation(err error) bool { return IsKind(err, KindUnknownRelation) }

// IsStore reports whether err wraps an underlying store failure.
func IsStore(err error) bool { return IsKind(err, KindStore) }
