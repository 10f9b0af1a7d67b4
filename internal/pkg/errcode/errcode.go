package errcode

import (
	"context"
	"errors"

	appErr "github.com/xxxsen/mstudy/internal/pkg/errors"
)

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrEmptySource
	ErrCancelled
)

// FromError maps service errors to a code and a client safe message.
func FromError(err error) (int, string) {
	switch {
	case errors.Is(err, appErr.ErrEmptySource):
		return ErrEmptySource, appErr.ErrEmptySource.Error()
	case errors.Is(err, appErr.ErrInvalid):
		return ErrInvalid, err.Error()
	case errors.Is(err, appErr.ErrNotFound):
		return ErrNotFound, "not found"
	case errors.Is(err, appErr.ErrConflict):
		return ErrConflict, "conflict"
	case errors.Is(err, appErr.ErrTooMany):
		return ErrTooMany, "too many requests"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCancelled, "request cancelled"
	default:
		return ErrInternal, "internal error"
	}
}
