package lifecycle

// State is the lifecycle state of a session.
type State int32

// Session states.
const (
	// StateUninitialized - No initialize request has been seen.
	StateUninitialized State = iota

	// StateInitializing - An initialize request is being served.
	StateInitializing

	// StateInitialized - The initialize response was sent.
	StateInitialized

	// StateReady - The initialized notification arrived.
	StateReady

	// StateShuttingDown - A shutdown request was accepted.
	StateShuttingDown

	// StateExited - The exit notification arrived.
	StateExited
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting down"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// IsServing returns true once the initialize response has been sent and
// until shutdown.
func (s State) IsServing() bool {
	return s == StateInitialized || s == StateReady
}
