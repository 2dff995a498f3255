package host

import "errors"

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("host: closed")

	// ErrUnknownExtension is returned for an extension id the host does
	// not know.
	ErrUnknownExtension = errors.New("host: unknown extension")

	// ErrDuplicateExtension is returned when an id is added twice.
	ErrDuplicateExtension = errors.New("host: duplicate extension")

	// ErrUnknownRequest is returned for a request id that is not in the
	// in-flight table.
	ErrUnknownRequest = errors.New("host: unknown request")
)
