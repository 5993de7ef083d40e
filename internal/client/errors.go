package client

import (
	"errors"
	"fmt"
	"time"
)

// ConnectionTimeoutError is returned when no worker answered GetPID within
// the connect timeout.
type ConnectionTimeoutError struct {
	Host    string
	Port    string
	Timeout time.Duration
	// Last transport error, if any.
	Err error
}

func (e *ConnectionTimeoutError) Error() string {
	msg := fmt.Sprintf("could not connect to model server at host %s port %s within %s", e.Host, e.Port, e.Timeout)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionTimeoutError) Unwrap() error { return e.Err }

// IsConnectionTimeout reports whether err is a ConnectionTimeoutError.
func IsConnectionTimeout(err error) bool {
	var e *ConnectionTimeoutError
	return errors.As(err, &e)
}

// RemoteError is an in-band {"error": ...} answer surfaced by the typed
// helpers (InputShape, ListModels, ...). Run* methods return it inside Result.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("client closed")
