package cdp

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEndpoint is returned when the DevTools endpoint is not a
	// valid ws:// or wss:// URL.
	ErrInvalidEndpoint = errors.New("invalid DevTools endpoint")

	// ErrConnect is returned when the WebSocket handshake fails.
	ErrConnect = errors.New("connecting to DevTools endpoint")

	// ErrSerialize is returned when a message can't be encoded or a
	// result can't be decoded.
	ErrSerialize = errors.New("serializing CDP message")

	// ErrConnectionClosed is returned to callers waiting on a response
	// when the connection to the browser is gone.
	ErrConnectionClosed = errors.New("CDP connection closed")

	// ErrEmptyResponse is returned when the browser answers a command
	// with neither a result nor an error.
	ErrEmptyResponse = errors.New("CDP response has no result or error")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("CDP connection already established")
)

// ProtocolError is an error reply sent by the browser for a command.
type ProtocolError struct {
	Method  string
	Code    int64
	Message string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Method, e.Message, e.Code)
}
