package internalerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingIdentity = errors.New("object contains no SOP identity")
	ErrConcurrentSend  = errors.New("concurrent file sends of the same data are not supported")
	ErrUnsupportedTS   = errors.New("unsupported transfer syntax")
)

// ClientError marks a fault caused by bad or incomplete input. The caller
// should not retry the same request unchanged.
type ClientError struct {
	Msg string
	Err error
}

func (e *ClientError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// ServerError marks an infrastructure fault. The whole object may be retried.
type ServerError struct {
	Msg string
	Err error
}

func (e *ServerError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *ServerError) Unwrap() error { return e.Err }

// Client wraps err as a client fault.
func Client(msg string, err error) error {
	return &ClientError{Msg: msg, Err: err}
}

// Server wraps err as a server fault.
func Server(msg string, err error) error {
	return &ServerError{Msg: msg, Err: err}
}

// IsClient reports whether err is a client fault.
func IsClient(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsServer reports whether err is a server fault.
func IsServer(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}
