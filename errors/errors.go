// Package errors provides error handling for AMS.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for operators
//
// Usage:
//
//	// Wrap with context
//	if err := store.SaveAsset(ctx, asset); err != nil {
//	    return errors.Wrap(err, "failed to save asset")
//	}
//
//	// Classify
//	if errors.Is(err, errors.ErrNotFound) {
//	    // target asset absent
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Stack traces
var (
	GetReportableStackTrace = crdb.GetReportableStackTrace
)

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the ingest, reset and destroy paths.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the target object does not exist
	ErrNotFound = New("not found")

	// ErrGone indicates the object was hard-deleted and only its tombstone remains
	ErrGone = New("gone")

	// ErrPermissionDenied indicates the acting identity lacks a required capability
	ErrPermissionDenied = New("permission denied")

	// ErrRecordExists indicates a create ingest targeted an asset that already exists
	ErrRecordExists = New("record exists")

	// ErrClassification indicates an XML document of unrecognized shape
	ErrClassification = New("unknown PBCore XML document type")

	// ErrSourceMissing indicates a batch item with neither inline data nor a location
	ErrSourceMissing = New("no source data or source location")

	// ErrCorrelationAmbiguity indicates more than one workflow entity matched one object id
	ErrCorrelationAmbiguity = New("ambiguous workflow entity correlation")

	// ErrInvalidTransition indicates a batch item status change the state machine forbids
	ErrInvalidTransition = New("invalid status transition")

	// ErrInvalidRequest indicates malformed input
	ErrInvalidRequest = New("invalid request")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsGoneError checks if an error is or wraps ErrGone
func IsGoneError(err error) bool {
	return err != nil && Is(err, ErrGone)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrapf(ErrNotFound, format, args...)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrapf(ErrInvalidRequest, format, args...)
}

// ClassName returns a short class label for an error, used in log lines
// that report "<class>: <message>" for recovered failures.
func ClassName(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrNotFound):
		return "NotFound"
	case Is(err, ErrGone):
		return "Gone"
	case Is(err, ErrPermissionDenied):
		return "PermissionDenied"
	case Is(err, ErrRecordExists):
		return "RecordExists"
	case Is(err, ErrClassification):
		return "ClassificationError"
	case Is(err, ErrSourceMissing):
		return "SourceMissingError"
	case Is(err, ErrCorrelationAmbiguity):
		return "CorrelationAmbiguity"
	case Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case Is(err, ErrInvalidRequest):
		return "InvalidRequest"
	default:
		return "Error"
	}
}
