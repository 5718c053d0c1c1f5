package gateway

import "fmt"

// AuthError means the backend rejected the credentials or the token.
type AuthError struct {
	Op      string
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: not authenticated (status %d)", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: not authenticated (status %d): %s", e.Op, e.Status, e.Message)
}

// ErrNoSession is returned by bearer calls when no token is stored.
var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no session token" }

// NetworkError wraps transport failures: dial, timeout, cancellation.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: network: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is a non-2xx answer that is not an authentication failure.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Message)
}

// DataError means the response body could not be understood.
type DataError struct {
	Op  string
	Err error
}

func (e *DataError) Error() string { return fmt.Sprintf("%s: bad response: %v", e.Op, e.Err) }
func (e *DataError) Unwrap() error { return e.Err }
