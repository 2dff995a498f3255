package jsonrpc

import "errors"

// MaxMessageSize bounds a single frame.
const MaxMessageSize = 32 << 20

var (
	// ErrClosed is returned by calls on a closed connection.
	ErrClosed = errors.New("jsonrpc: connection closed")

	// ErrFraming indicates a frame could not be read off the stream.
	ErrFraming = errors.New("jsonrpc: framing error")
)
