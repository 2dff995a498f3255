package extension

import "errors"

var (
	// ErrNotStarted is returned when the runtime has not been opened.
	ErrNotStarted = errors.New("extension: not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("extension: already started")

	// ErrClosed is returned after the session was torn down.
	ErrClosed = errors.New("extension: closed")

	// ErrNoCommand is returned when a process runtime has nothing to run.
	ErrNoCommand = errors.New("extension: no command")
)
