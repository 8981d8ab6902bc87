package domain

import "errors"

// Sentinel errors - use with errors.Is(). The HTTP layer maps them to status
// codes in one place (handler.handleError).
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
