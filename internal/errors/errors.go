package errors

import "errors"

// Centralized sentinel errors for the application. Services return these
// (usually wrapped) and the API layer maps them to HTTP responses with
// errors.Is, keeping business logic free of status codes.

var (
	// ErrUnauthorized signifies that no user identity could be resolved for
	// the request. Mapped to 401 Unauthorized.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation signifies that client input failed validation.
	// Mapped to 400 Bad Request.
	ErrValidation = errors.New("validation failed")

	// ErrRateLimited signifies that the caller exhausted its admission quota.
	// Handled specially by the chat endpoint: the response is a plain-text
	// retry message, not an error status.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUpstream signifies a failure from the inference backend before any
	// output reached the client. Mapped to 502 Bad Gateway.
	ErrUpstream = errors.New("upstream generation failed")

	// ErrInternal signifies an unexpected server-side error. Mapped to 500.
	ErrInternal = errors.New("internal server error")
)
