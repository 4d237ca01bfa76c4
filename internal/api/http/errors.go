package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/scripthost/backend/internal/core/rpc"
	"github.com/GriffinCanCode/scripthost/backend/internal/sandbox"
	"github.com/GriffinCanCode/scripthost/backend/internal/supervisor"
)

// errValidation marks request validation failures
var errValidation = errors.New("invalid request")

// statusFor maps supervisor and context errors to HTTP status codes
func statusFor(err error) int {
	var remote *rpc.RemoteError
	var fault *supervisor.FaultError
	switch {
	case errors.Is(err, errValidation), errors.Is(err, supervisor.ErrEmptySource):
		return http.StatusBadRequest
	case errors.Is(err, supervisor.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrAtCapacity),
		errors.Is(err, supervisor.ErrSpawnsSuspended),
		errors.Is(err, supervisor.ErrSupervisorClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, supervisor.ErrContextClosed), errors.Is(err, rpc.ErrClosed):
		return http.StatusGone
	case errors.Is(err, supervisor.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, sandbox.ErrCanceled):
		return http.StatusConflict
	case errors.As(err, &remote), errors.As(err, &fault):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
