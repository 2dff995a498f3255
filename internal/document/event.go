package document

import "github.com/dshills/exthost/internal/protocol"

// EventKind identifies a document mutation.
type EventKind int

// Event kinds.
const (
	EventOpen EventKind = iota + 1
	EventChange
	EventSave
	EventClose
)

// String returns a string representation of the kind.
func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventChange:
		return "change"
	case EventSave:
		return "save"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is an accepted document mutation. Snapshot is the document state
// after the mutation.
type Event struct {
	Kind     EventKind
	Snapshot Snapshot

	// Previous is the text before a change.
	Previous string
	// Changes are the content changes as the host issued them.
	Changes []protocol.TextDocumentContentChangeEvent
	// Saved is the saved text, when the host included it.
	Saved *string
}

// Method returns the protocol notification the event is delivered as.
func (e Event) Method() string {
	switch e.Kind {
	case EventOpen:
		return protocol.MethodDidOpen
	case EventChange:
		return protocol.MethodDidChange
	case EventSave:
		return protocol.MethodDidSave
	case EventClose:
		return protocol.MethodDidClose
	default:
		return ""
	}
}
