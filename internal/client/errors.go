package client

import (
	"errors"
	"fmt"
)

var errNotConnected = errors.New("not connected")

// NetworkError is a transient transport failure. Connections retry it via
// backoff; mutation callers may retry at their discretion.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// AuthorizationError is an authorization denial (401/403-equivalent). It is
// terminal for a session and never auto-retried.
type AuthorizationError struct {
	Status int
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization denied (status %d)", e.Status)
}

// ServerError is a failure reported by the backend. Retryable at caller
// discretion.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error (status %d)", e.Status)
	}
	return fmt.Sprintf("server error (status %d): %s", e.Status, e.Message)
}
