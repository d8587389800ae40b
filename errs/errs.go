// Package errs defines the shared error taxonomy used across the scoped
// runtime. Every fallible operation returns one of these sentinels, wrapped
// with additional context via fmt.Errorf("...: %w", ...), so callers can
// branch with errors.Is regardless of which component raised the error.
package errs

import "errors"

var (
	// ErrInvalidArgument reports a caller-supplied value that is malformed
	// or violates a documented precondition (nil callback, duplicate
	// category id, empty scope id, unknown config key).
	ErrInvalidArgument = errors.New("scoped: invalid argument")

	// ErrNotFound reports a lookup that found nothing (unknown scope id,
	// removed scope).
	ErrNotFound = errors.New("scoped: not found")

	// ErrLogicError reports API misuse after an object has already
	// finalised (double-finish, add-after-shutdown, duplicate registration).
	ErrLogicError = errors.New("scoped: logic error")

	// ErrResourceError reports a failure acquiring an external resource:
	// file I/O, process spawn, default-directory resolution.
	ErrResourceError = errors.New("scoped: resource error")

	// ErrMiddleware reports a transport or codec failure.
	ErrMiddleware = errors.New("scoped: middleware error")

	// ErrTimeout reports a bounded wait that expired.
	ErrTimeout = errors.New("scoped: timeout")
)
