// Package errs defines the error kinds surfaced by the domain services.
// Handlers map kinds to HTTP statuses; services attach a human-readable
// detail via E.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound: referenced profile, group, edge, or membership does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: actor lacks authorization for the requested transition.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict: invariant violation on create (duplicate edge, membership, name).
	ErrConflict = errors.New("conflict")
	// ErrInvalidState: transition not valid from the current status.
	ErrInvalidState = errors.New("invalid state")
	// ErrBlocked: operation refused by the target's presence state.
	ErrBlocked = errors.New("blocked")
	// ErrMalformedInput: unparseable payload or missing required field.
	ErrMalformedInput = errors.New("malformed input")
)

// E wraps a kind with a detail message, keeping errors.Is(err, kind) true.
func E(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Detail returns the message without the kind prefix, suitable for API output.
func Detail(err error) string {
	for _, kind := range []error{ErrNotFound, ErrForbidden, ErrConflict, ErrInvalidState, ErrBlocked, ErrMalformedInput} {
		if errors.Is(err, kind) {
			msg := err.Error()
			prefix := kind.Error() + ": "
			if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
				return msg[len(prefix):]
			}
			return msg
		}
	}
	return err.Error()
}

// HTTPStatus maps an error kind to its HTTP status code equivalent.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict), errors.Is(err, ErrBlocked):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrMalformedInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
