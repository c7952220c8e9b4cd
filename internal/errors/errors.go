// Package errors defines the error kinds shared by the domain, the application
// services and the storage adapters. Callers match kinds with Is, never by
// comparing messages.
package errors

import (
	"github.com/cockroachdb/errors"
)

// Error kinds. Repositories and services mark the errors they return with one
// of these so the scheduler driver can tell a dead store from a bad record.
var (
	ErrInvalidObligation = errors.New("invalid obligation")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrDispatchFailed    = errors.New("dispatch failed")
	ErrNotFound          = errors.New("resource not found")
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Is reports whether err carries the given kind. It understands cockroachdb
// marks as well as joined errors produced by errors.Join.
func Is(err, kind error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, kind) {
		return true
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range multi.Unwrap() {
			if Is(e, kind) {
				return true
			}
		}
	}
	return false
}

// GetHint returns the first user facing hint attached to err, if any.
func GetHint(err error) string {
	hints := errors.GetAllHints(err)
	if len(hints) == 0 {
		return ""
	}
	return hints[0]
}
