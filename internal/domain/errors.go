package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrLockHeld       = errors.New("lock already held")
	ErrGameNotFound   = errors.New("game not found")
	ErrInvalidOutcome = errors.New("invalid outcome")
	ErrInvalidAmount  = errors.New("invalid amount")
)
