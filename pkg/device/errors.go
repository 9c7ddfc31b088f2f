package device

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when no complete response line arrives in time.
	ErrTimeout = errors.New("response timeout")
	// ErrMalformed is returned for responses that are not a decimal integer.
	ErrMalformed = errors.New("malformed response")
	// ErrStatus is returned when the device reports a non-zero status.
	ErrStatus = errors.New("device reported failure")
	// ErrClosed is returned when the channel is used after Close.
	ErrClosed = errors.New("channel closed")
)

// ProtocolError describes a failed request/response exchange.
type ProtocolError struct {
	Op       string // "get" or "set"
	Probe    string
	Request  string
	Response string
	Err      error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s probe %s: %v", e.Op, e.Probe, e.Err)
	if e.Response != "" {
		msg += fmt.Sprintf(" (response %q)", e.Response)
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
