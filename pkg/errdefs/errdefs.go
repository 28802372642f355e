// Package errdefs defines the sentinel errors shared across Traceon's
// auth, action, and API layers. Wrapping one of these lets the
// transport layer map an internal failure to the right status code and
// user-facing message.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailure is returned when the identity provider rejects
	// credentials. Surfaced to the actor, never retried.
	ErrAuthFailure = errors.New("authentication failed")

	// ErrPermissionDenied is returned when an actor lacks the role or
	// ownership required for a read or write.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrPrecondition is returned when an action targets a parcel or
	// device in an incompatible state. Rejected before any write; the
	// message names the violated precondition.
	ErrPrecondition = errors.New("precondition violated")

	// ErrPartialWrite is returned when a multi-step action fails after
	// one or more of its writes succeeded. Logged and surfaced, never
	// compensated automatically.
	ErrPartialWrite = errors.New("partial write failure")

	// ErrNotFound is returned when the addressed record does not exist
	ErrNotFound = errors.New("not found")
)

// PermissionDenied wraps ErrPermissionDenied with context
func PermissionDenied(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrPermissionDenied)...)
}

// Precondition wraps ErrPrecondition with the violated condition
func Precondition(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrPrecondition)...)
}

// IsAuthFailure reports whether err is an authentication failure
func IsAuthFailure(err error) bool { return errors.Is(err, ErrAuthFailure) }

// IsPermissionDenied reports whether err is a permission denial
func IsPermissionDenied(err error) bool { return errors.Is(err, ErrPermissionDenied) }

// IsPrecondition reports whether err is a precondition violation
func IsPrecondition(err error) bool { return errors.Is(err, ErrPrecondition) }

// IsNotFound reports whether err is a missing-record error
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
