package lifecycle

import (
	"github.com/dshills/exthost/internal/protocol"
)

// Negotiated is the effective feature set of a session, fixed when the
// initialize response arrives.
type Negotiated struct {
	Revision     string
	SyncKind     protocol.TextDocumentSyncKind
	OpenClose    bool
	Capabilities protocol.ServerCapabilities
	ServerInfo   *protocol.Info

	families map[protocol.Family]bool
}

// Negotiate computes the effective feature set from the initialize
// exchange. The families are exactly those the extension declared; the
// revision is the older of the two announced revisions.
func Negotiate(params protocol.InitializeParams, result protocol.InitializeResult) Negotiated {
	n := Negotiated{
		Revision:     protocol.MinRevision(params.ProtocolVersion, result.ProtocolVersion),
		SyncKind:     result.Capabilities.SyncKind(),
		Capabilities: result.Capabilities,
		ServerInfo:   result.ServerInfo,
		families:     make(map[protocol.Family]bool),
	}
	if sync := result.Capabilities.TextDocumentSync; sync != nil {
		n.OpenClose = sync.OpenClose
	}
	for _, f := range result.Capabilities.SupportedFamilies() {
		n.families[f] = true
	}
	return n
}

// Supports reports whether the host may route family f to the extension.
func (n Negotiated) Supports(f protocol.Family) bool {
	return n.families[f]
}

// Families lists the negotiated families in catalog order.
func (n Negotiated) Families() []protocol.Family {
	var out []protocol.Family
	for _, f := range protocol.Families() {
		if n.families[f] {
			out = append(out, f)
		}
	}
	return out
}

// Understands reports whether method exists in the negotiated revision.
func (n Negotiated) Understands(method string) bool {
	return protocol.Default().Available(method, n.Revision)
}

// WantsDocuments reports whether the extension should receive document
// synchronization notifications at all.
func (n Negotiated) WantsDocuments() bool {
	return n.OpenClose || n.SyncKind != protocol.SyncNone
}

// ServerName returns the extension's self-reported name, if any.
func (n Negotiated) ServerName() string {
	if n.ServerInfo == nil {
		return ""
	}
	return n.ServerInfo.Name
}
