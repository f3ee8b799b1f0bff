package rest

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/c360/botapi/errors"
)

// mapErrorToHTTPStatus maps classified errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusInternalServerError
	}

	if errors.IsNotFound(err) {
		return http.StatusNotFound
	}
	if errors.IsConflict(err) {
		return http.StatusConflict
	}
	if errors.IsInvalid(err) {
		return http.StatusBadRequest
	}
	if errors.IsTransient(err) {
		if strings.Contains(err.Error(), "timeout") {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// sanitizeError returns a safe client-facing message. Internal detail
// stays in the log, never in the response.
func sanitizeError(err error) string {
	if err == nil {
		return "internal server error"
	}

	switch {
	case stderrors.Is(err, errors.ErrUserNotFound):
		return "user not found"
	case stderrors.Is(err, errors.ErrMessageNotFound):
		return "message not found"
	case stderrors.Is(err, errors.ErrUserExists):
		return "user already exists"
	case stderrors.Is(err, errors.ErrEmptyContent):
		return "message content cannot be empty"
	case stderrors.Is(err, errors.ErrEmptyName):
		return "user name cannot be empty"
	}

	if errors.IsNotFound(err) {
		return "resource not found"
	}
	if errors.IsInvalid(err) {
		return "invalid request"
	}
	if errors.IsTransient(err) {
		if strings.Contains(err.Error(), "timeout") {
			return "request timeout"
		}
		return "service temporarily unavailable"
	}
	return "internal server error"
}
