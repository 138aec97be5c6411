package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthenticated is returned before any network call when an operation
// that needs a session is attempted without one.
var ErrUnauthenticated = errors.New("api: not authenticated, please log in")

// Error is a non-2xx backend response reduced to something a caller can show.
// Body keeps the raw response so callers that need structured details (for
// example the unverified-email login branch) can decode them.
type Error struct {
	Status  int
	Message string
	Body    []byte
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return fmt.Sprintf("request failed: %d %s", e.Status, http.StatusText(e.Status))
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not a
// backend response error.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}

	return 0
}

// IsStatus reports whether err is a backend response with the given status.
func IsStatus(err error, status int) bool {
	return StatusOf(err) == status
}
