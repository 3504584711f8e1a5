package errors

import (
	goerrors "errors"
	"fmt"
)

// Authorization
var (
	ErrUnauthenticated      = fmt.Errorf("principal is not authenticated")
	ErrMalformedCredentials = fmt.Errorf("malformed credentials")
	ErrInvalidCredentials   = fmt.Errorf("invalid credentials")
	ErrTokenGeneration      = fmt.Errorf("token generation failed")
	ErrUserAlreadyExists    = fmt.Errorf("user already exists")
)

// Validation
var (
	ErrEmptyText       = fmt.Errorf("message text is empty")
	ErrTextTooLong     = fmt.Errorf("message text is too long")
	ErrEmptyQuery      = fmt.Errorf("search query is empty")
	ErrInvalidPassword = fmt.Errorf("password does not meet complexity requirements")
	ErrInvalidUsername = fmt.Errorf("username is invalid")
)

// Storage and delivery
var (
	ErrStore         = fmt.Errorf("message store failure")
	ErrSessionClosed = fmt.Errorf("session closed")
	ErrQueueOverflow = fmt.Errorf("session queue overflow")
	ErrBrokerClosed  = fmt.Errorf("broker is shut down")
	ErrWorkerPanic   = fmt.Errorf("worker panic")
)

// IsValidation reports whether err was caused by malformed client input.
func IsValidation(err error) bool {
	return goerrors.Is(err, ErrEmptyText) ||
		goerrors.Is(err, ErrTextTooLong) ||
		goerrors.Is(err, ErrEmptyQuery) ||
		goerrors.Is(err, ErrInvalidPassword) ||
		goerrors.Is(err, ErrInvalidUsername) ||
		goerrors.Is(err, ErrMalformedCredentials)
}
