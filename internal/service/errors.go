// Package service provides business logic services for Pergamon.
package service

import "errors"

// Common service errors.
var (
	// Validation errors
	ErrInvalidName     = errors.New("invalid name: must be at least 2 characters")
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrInvalidPassword = errors.New("invalid password: must be at least 6 characters")
	ErrInvalidPhone    = errors.New("invalid phone: must be at least 10 characters")
	ErrInvalidTitle    = errors.New("invalid title: must not be empty")
	ErrInvalidAuthor   = errors.New("invalid author: must not be empty")
	ErrInvalidPeriod   = errors.New("invalid loan period")

	// General errors
	ErrInternalError = errors.New("internal server error")
)
