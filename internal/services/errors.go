package services

import "errors"

var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the record exists but belongs to another user.
	ErrForbidden = errors.New("not authorized to access this resource")
	// ErrEmailTaken means an account with the email already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken covers malformed, unknown and expired refresh tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrValidation wraps malformed-input failures detected below the
	// HTTP binding layer.
	ErrValidation = errors.New("validation failed")
)
