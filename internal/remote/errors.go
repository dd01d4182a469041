package remote

import (
	"errors"
	"fmt"
)

// NetworkError is a transport-level failure (connection refused, timeout,
// open circuit). It is the only error the client retries.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string     { return fmt.Sprintf("network error during %s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error     { return e.Err }
func (e *NetworkError) IsRetryable() bool { return true }

// AuthError means the remote rejected the configured token.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected (status %d): %s", e.StatusCode, e.Message)
}
func (e *AuthError) IsRetryable() bool { return false }

// RemoteError is a non-2xx response or a GraphQL error payload.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.StatusCode, e.Message)
}
func (e *RemoteError) IsRetryable() bool { return false }

// MalformedResponseError means the response could not be decoded into the
// expected graph shape.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Reason, e.Err)
	}
	return "malformed response: " + e.Reason
}
func (e *MalformedResponseError) Unwrap() error     { return e.Err }
func (e *MalformedResponseError) IsRetryable() bool { return false }

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	var (
		ne *NetworkError
		ae *AuthError
		re *RemoteError
		me *MalformedResponseError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ne):
		return "network"
	case errors.As(err, &ae):
		return "auth"
	case errors.As(err, &re):
		return "remote"
	case errors.As(err, &me):
		return "malformed"
	default:
		return "other"
	}
}
