package errors

import (
	goerrors "errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MapToGRPCError converts a domain error into a gRPC status error.
// Errors that already carry a status are returned unchanged.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case goerrors.Is(err, ErrUnauthenticated), goerrors.Is(err, ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, err.Error())
	case IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case goerrors.Is(err, ErrUserAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case goerrors.Is(err, ErrQueueOverflow):
		return status.Error(codes.ResourceExhausted, err.Error())
	case goerrors.Is(err, ErrSessionClosed), goerrors.Is(err, ErrBrokerClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// MapToHTTPStatus returns the HTTP status code matching a domain error.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case goerrors.Is(err, ErrUnauthenticated), goerrors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case IsValidation(err):
		return http.StatusBadRequest
	case goerrors.Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	case goerrors.Is(err, ErrBrokerClosed), goerrors.Is(err, ErrSessionClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
