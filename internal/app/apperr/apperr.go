// Package apperr defines the sentinel errors services wrap so the HTTP
// boundary can map failures to status codes without string matching.
package apperr

import "errors"

var (
	// ErrInvalidInput marks request payloads that fail validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotAuthenticated marks missing or bad credentials.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotAuthorized marks an authenticated caller acting on a resource
	// that is not theirs.
	ErrNotAuthorized = errors.New("not authorized")
)
