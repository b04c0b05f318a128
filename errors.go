package resolv

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvalidNameError is returned when an input string fails name validation
// (§4.1), or when an IP literal is queried for a kind other than its own
// (A for IPv4, AAAA for IPv6).
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid name %q: %s", e.Name, e.Reason)
}

// ServerFailureError carries a non-zero response code returned by the
// upstream server.
type ServerFailureError struct {
	Name  string
	Rcode int
}

func (e *ServerFailureError) Error() string {
	return fmt.Sprintf("server failure resolving %q: rcode %d", e.Name, e.Rcode)
}

// NoRecordError indicates the upstream replied with rcode 0 but no answer
// records for the requested kind.
type NoRecordError struct {
	Name string
	Kind Kind
}

func (e *NoRecordError) Error() string {
	return fmt.Sprintf("no %s record for %q", e.Kind, e.Name)
}

// TruncationUnrecoverableError indicates a TCP reply still had the
// truncated bit set.
type TruncationUnrecoverableError struct {
	Name string
}

func (e *TruncationUnrecoverableError) Error() string {
	return fmt.Sprintf("truncated response for %q over tcp", e.Name)
}

// ConnectionError wraps a socket, decode, or protocol-level failure. Cause
// recovers the underlying diagnostic via github.com/pkg/errors.
type ConnectionError struct {
	URI string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %s", e.URI, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Cause() error { return errors.Cause(e.Err) }

func newConnectionError(uri string, err error) *ConnectionError {
	return &ConnectionError{URI: uri, Err: errors.WithStack(err)}
}

// ChainTooLongError is returned when the CNAME/DNAME chase exceeds
// maxChaseIterations.
type ChainTooLongError struct {
	Name string
}

func (e *ChainTooLongError) Error() string {
	return fmt.Sprintf("chain too long resolving %q", e.Name)
}

// TimeoutError is returned when the overall per-call timeout elapses
// before enough upstream queries completed.
type TimeoutError struct {
	Name string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout resolving %q", e.Name)
}
