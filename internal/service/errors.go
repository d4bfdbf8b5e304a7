// Package service provides business logic for the application.
package service

import "errors"

// Service errors.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("password is incorrect")
	ErrKeyInvalid         = errors.New("API key is invalid")
	ErrKeyExpired         = errors.New("API key is expired")
	ErrUsernameTaken      = errors.New("username already exists")
)
