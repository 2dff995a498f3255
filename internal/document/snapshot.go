package document

import (
	"time"

	"github.com/dshills/exthost/internal/protocol"
)

// Snapshot is a read-only copy of an open document.
type Snapshot struct {
	URI        protocol.DocumentURI
	LanguageID string
	Version    int32
	Text       string
	OpenedAt   time.Time
	ModifiedAt time.Time
}

// Item returns the snapshot as a protocol text document item.
func (s Snapshot) Item() protocol.TextDocumentItem {
	return protocol.TextDocumentItem{
		URI:        s.URI,
		LanguageID: s.LanguageID,
		Version:    s.Version,
		Text:       s.Text,
	}
}

// Identifier returns the versioned identifier of the snapshot.
func (s Snapshot) Identifier() protocol.VersionedTextDocumentIdentifier {
	return protocol.VersionedTextDocumentIdentifier{URI: s.URI, Version: s.Version}
}

// Index builds a line index over the snapshot text.
func (s Snapshot) Index() *protocol.LineIndex {
	return protocol.NewLineIndex(s.Text)
}
