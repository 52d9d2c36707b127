package storage

import "errors"

var (
	// ErrAccountNotFound is returned when an account is not found
	ErrAccountNotFound = errors.New("account not found")

	// ErrAPIKeyNotFound is returned when an API key is not found
	ErrAPIKeyNotFound = errors.New("API key not found")

	// ErrModelNotFound is returned when a model is not found or inactive
	ErrModelNotFound = errors.New("model not found")

	// ErrRefreshTokenNotFound is returned when a refresh token is not found
	ErrRefreshTokenNotFound = errors.New("refresh token not found")

	// ErrDuplicateEmail is returned when registering an already-used email
	ErrDuplicateEmail = errors.New("email already registered")
)
