package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a malformed or incomplete request.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates a permission or ownership check failed.
	ErrForbidden = errors.New("forbidden")
	// ErrAuthenticationRequired indicates no authenticated identity is present.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
