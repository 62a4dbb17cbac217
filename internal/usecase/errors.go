package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrLocked                = errors.New("tipping is locked")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrMissingCredentials    = errors.New("missing credentials")
)
