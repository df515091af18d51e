package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bangdoll/tubenotes/internal/jobs"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error. Busy
// maps to 409 for the non-streaming paths; once an SSE stream has started
// the busy signal travels as an event instead.
func HTTPStatus(err error) int {
	var ve *ErrValidation
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrTimedOut):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
