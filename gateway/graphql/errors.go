package graphql

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/c360/botapi/errors"
)

// Error codes surfaced in extensions.code.
const (
	codeNotFound     = "NOT_FOUND"
	codeInvalidInput = "INVALID_INPUT"
	codeTimeout      = "TIMEOUT"
	codeInternal     = "INTERNAL_ERROR"
)

// mapError converts a registry error to a GraphQL error with a stable
// extensions code. Internal detail never reaches the client.
func mapError(err error, operation string) *gqlerror.Error {
	if err == nil {
		return nil
	}

	code := codeInternal
	message := "internal error"

	switch {
	case stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled):
		code = codeTimeout
		message = "operation timed out"
	case stderrors.Is(err, errors.ErrUserNotFound):
		code = codeNotFound
		message = "user not found"
	case stderrors.Is(err, errors.ErrMessageNotFound):
		code = codeNotFound
		message = "message not found"
	case stderrors.Is(err, errors.ErrUserExists):
		code = codeInvalidInput
		message = "user already exists"
	case stderrors.Is(err, errors.ErrEmptyContent):
		code = codeInvalidInput
		message = "message content cannot be empty"
	case errors.IsNotFound(err):
		code = codeNotFound
		message = "resource not found"
	case errors.IsInvalid(err):
		code = codeInvalidInput
		message = "invalid input"
	case errors.IsTransient(err):
		if strings.Contains(err.Error(), "timeout") {
			code = codeTimeout
			message = "operation timed out"
		} else {
			message = "service temporarily unavailable"
		}
	}

	return &gqlerror.Error{
		Message: message,
		Extensions: map[string]interface{}{
			"code":      code,
			"operation": operation,
		},
	}
}
