// Package errs defines the error taxonomy shared across the service. Callers
// classify failures with errors.Is against the sentinels; the API layer maps
// them onto HTTP status codes.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks lookups for records or files that do not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks operations rejected by current state, such as a
	// quota already reached.
	ErrConflict = errors.New("conflict")

	// ErrValidation marks rejected input.
	ErrValidation = errors.New("invalid")

	// ErrIO marks filesystem and storage failures.
	ErrIO = errors.New("io failure")

	// ErrProcess marks subprocess spawn and signal failures.
	ErrProcess = errors.New("process failure")
)

// NotFoundf formats a message and tags it with ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return tag(ErrNotFound, format, args...)
}

// Conflictf formats a message and tags it with ErrConflict.
func Conflictf(format string, args ...any) error {
	return tag(ErrConflict, format, args...)
}

// Validationf formats a message and tags it with ErrValidation.
func Validationf(format string, args ...any) error {
	return tag(ErrValidation, format, args...)
}

// IOf formats a message and tags it with ErrIO.
func IOf(format string, args ...any) error {
	return tag(ErrIO, format, args...)
}

// Processf formats a message and tags it with ErrProcess.
func Processf(format string, args ...any) error {
	return tag(ErrProcess, format, args...)
}

// tag appends the sentinel to the wrap chain, preserving any %w verbs the
// caller's format already carries.
func tag(sentinel error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, sentinel)...)
}
