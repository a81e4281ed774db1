// Package errs provides the unified error type used across all of dbspec.
//
// Every subsystem (object model, spec mapper, synthesizer, database,
// filestore, …) wraps its native errors into *errs.Error before returning
// them to callers. Callers use the Is* predicates to handle errors without
// importing driver-specific packages.
//
// Usage:
//
//	// In the model builder, reject a duplicate identity key:
//	return errs.Keyed(errs.ErrKindDuplicateObject, key.String(), "object already defined")
//
//	// In a command, check error kind:
//	if errs.IsSpecSyntax(err) {
//	    fmt.Fprintln(os.Stderr, "fix the specification file:", err)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// All backends (Postgres, MinIO, local files, …) map their native errors to
// one of these kinds, giving callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows, no object, no bucket
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL or storage operation error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied / auth failure

	ErrKindDuplicateObject   // two objects share one identity key
	ErrKindSpecSyntax        // malformed specification document
	ErrKindSpecSemantic      // specification is internally inconsistent
	ErrKindDanglingReference // a reference cannot be resolved in its model
	ErrKindSynthesis         // change-set cannot be linearized into statements
	ErrKindUnsupportedObject // recognized kind without an implementation
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindDuplicateObject:
		return "duplicate_object"
	case ErrKindSpecSyntax:
		return "spec_syntax"
	case ErrKindSpecSemantic:
		return "spec_semantic"
	case ErrKindDanglingReference:
		return "dangling_reference"
	case ErrKindSynthesis:
		return "synthesis"
	case ErrKindUnsupportedObject:
		return "unsupported_object"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all dbspec subsystems.
// Drivers produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Key     string // qualified identity key of the offending object, if any
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Key != "" {
		msg = fmt.Sprintf("%s: %s", e.Key, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Keyed creates an *Error that names the object it concerns.
func Keyed(kind ErrKind, key, msg string) *Error {
	return &Error{Kind: kind, Key: key, Message: msg}
}

// Keyedf is Keyed with a format string.
func Keyedf(kind ErrKind, key, format string, args ...any) *Error {
	return &Error{Kind: kind, Key: key, Message: fmt.Sprintf(format, args...)}
}

// KeyOf returns the first non-empty identity key found in the error chain.
func KeyOf(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Key != "" {
			return e.Key
		}
		err = e.Cause
	}
	return ""
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result
// (no rows, missing object, unknown table/bucket, …).
func IsNotFound(err error) bool {
	return hasKind(err, ErrKindNotFound)
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return hasKind(err, ErrKindTimeout)
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return hasKind(err, ErrKindConnectionFailed)
}

// IsQueryFailed reports whether err is a backend operation failure
// (SQL execution error, storage I/O error, …).
func IsQueryFailed(err error) bool {
	return hasKind(err, ErrKindQueryFailed)
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return hasKind(err, ErrKindInvalidInput)
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return hasKind(err, ErrKindPermissionDenied)
}

// IsDuplicateObject reports whether two objects were given the same identity key.
func IsDuplicateObject(err error) bool {
	return hasKind(err, ErrKindDuplicateObject)
}

// IsSpecSyntax reports whether a specification document is structurally malformed.
func IsSpecSyntax(err error) bool {
	return hasKind(err, ErrKindSpecSyntax)
}

// IsSpecSemantic reports whether a specification failed post-parse validation.
func IsSpecSemantic(err error) bool {
	return hasKind(err, ErrKindSpecSemantic)
}

// IsDanglingReference reports whether a reference could not be resolved.
func IsDanglingReference(err error) bool {
	return hasKind(err, ErrKindDanglingReference)
}

// IsSynthesis reports whether statement generation failed.
func IsSynthesis(err error) bool {
	return hasKind(err, ErrKindSynthesis)
}

// IsUnsupportedObject reports whether a recognized but unimplemented kind was met.
func IsUnsupportedObject(err error) bool {
	return hasKind(err, ErrKindUnsupportedObject)
}

// KindOf extracts the outermost ErrKind from the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// hasKind walks every *Error in the chain, so a wrapped dangling reference
// still satisfies IsDanglingReference after the mapper wraps it as semantic.
func hasKind(err error, kind ErrKind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}
