package customErrors

import (
	"errors"
	"fmt"
)

const (
	ErrNotFound     = "NOT FOUND"
	ErrInvalidInput = "INVALID INPUT"
	ErrAuth         = "UNAUTHORIZED"
	ErrAccessDenied = "ACCESS DENIED"
	ErrConflict     = "CONFLICT"
	ErrInternal     = "INTERNAL"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ErrorResponse) Error() string {
	return fmt.Sprintf("code: %s, message: %s", e.Code, e.Message)
}

// New is a shorthand for building an ErrorResponse with a formatted message.
func New(code string, format string, args ...any) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// CodeOf returns the code of the first ErrorResponse in err's chain,
// or ErrInternal when there is none.
func CodeOf(err error) string {
	var appErr ErrorResponse
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// MessageOf returns the user facing message of err.
func MessageOf(err error) string {
	var appErr ErrorResponse
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
