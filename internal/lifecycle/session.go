package lifecycle

import (
	"errors"
	"sync"

	"github.com/dshills/exthost/internal/protocol"
)

// ErrDropped is returned by Admit for notifications that must be ignored
// silently in the current state.
var ErrDropped = errors.New("lifecycle: notification dropped")

// Session tracks the lifecycle of one connection.
type Session struct {
	mu       sync.Mutex
	state    State
	shutdown bool
	onChange func(from, to State)
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithStateHook registers a callback invoked after every transition. It
// runs with the session lock released.
func WithStateHook(fn func(from, to State)) SessionOption {
	return func(s *Session) {
		s.onChange = fn
	}
}

// NewSession creates an uninitialized session.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Admit decides whether an incoming message may be handled. Requests that
// are refused get the returned error as their response; notifications
// that are refused are dropped. Admitting initialize, shutdown or exit
// also performs the matching transition.
func (s *Session) Admit(method string, isRequest bool) error {
	s.mu.Lock()
	from := s.state
	err := s.admit(method, isRequest)
	to := s.state
	s.mu.Unlock()

	if from != to && s.onChange != nil {
		s.onChange(from, to)
	}
	return err
}

func (s *Session) admit(method string, isRequest bool) error {
	if s.state == StateExited {
		if isRequest {
			return protocol.Errorf(protocol.CodeInvalidRequest, "session has exited")
		}
		return ErrDropped
	}

	if method == protocol.MethodExit {
		s.state = StateExited
		return nil
	}
	if method == protocol.MethodCancel {
		return nil
	}

	if s.state == StateShuttingDown {
		if isRequest {
			return protocol.Errorf(protocol.CodeInvalidRequest, "%s after shutdown", method)
		}
		return ErrDropped
	}

	if method == protocol.MethodInitialize {
		if s.state != StateUninitialized {
			return protocol.Errorf(protocol.CodeAlreadyInitialized, "session is already initialized")
		}
		s.state = StateInitializing
		return nil
	}

	switch s.state {
	case StateUninitialized, StateInitializing:
		// Includes shutdown: a session that never initialized has nothing
		// to shut down, and the peer is told so with NotInitialized.
		if isRequest {
			return protocol.Errorf(protocol.CodeNotInitialized, "%s before initialize", method)
		}
		return ErrDropped
	}

	switch method {
	case protocol.MethodInitialized:
		if s.state == StateInitialized {
			s.state = StateReady
		}
	case protocol.MethodShutdown:
		s.state = StateShuttingDown
		s.shutdown = true
	}
	return nil
}

// Initialized records the outcome of the initialize request admitted
// earlier. A failed initialize returns the session to Uninitialized so the
// peer may try again.
func (s *Session) Initialized(err error) {
	s.mu.Lock()
	from := s.state
	if s.state == StateInitializing {
		if err != nil {
			s.state = StateUninitialized
		} else {
			s.state = StateInitialized
		}
	}
	to := s.state
	s.mu.Unlock()

	if from != to && s.onChange != nil {
		s.onChange(from, to)
	}
}

// ExitCode returns the process exit code for an exited session: 0 when a
// shutdown request preceded exit and 1 otherwise.
func (s *Session) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return 0
	}
	return 1
}

// IsViolation reports whether err is a protocol violation that should
// terminate the session rather than fail a single request.
func IsViolation(err error) bool {
	return errors.Is(err, protocol.ErrAlreadyInitialized) || errors.Is(err, protocol.ErrInvalidRequest)
}
