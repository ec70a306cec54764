package domain

import "errors"

var (
	ErrValidation         = errors.New("validation error")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrUnauthorized       = errors.New("not authorized")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidCode        = errors.New("invalid or expired code")
	ErrUnavailable        = errors.New("service unavailable")
)
