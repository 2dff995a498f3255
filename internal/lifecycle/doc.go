// Package lifecycle implements the session state machine shared by both
// ends of an extension connection and the capability negotiation that
// fixes, for the lifetime of a session, which feature families the host
// may route to an extension and how documents are synchronized with it.
//
// A session moves through
//
//	Uninitialized -> Initializing -> Initialized -> Ready -> ShuttingDown -> Exited
//
// and Session.Admit decides, for every incoming message, whether it may
// proceed in the current state.
package lifecycle
