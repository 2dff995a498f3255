package diagnostics

import (
	"sync"

	"github.com/dshills/exthost/internal/protocol"
)

// SourceDecorations are the decorations one source published for a
// document.
type SourceDecorations struct {
	Source      string
	Decorations []protocol.TextDocumentDecoration
}

// Decorations holds published decorations. It is safe for concurrent use.
type Decorations struct {
	mu       sync.RWMutex
	sets     table[[]protocol.TextDocumentDecoration]
	onChange func(uri protocol.DocumentURI, source string)
}

// NewDecorations creates an empty decoration store. onChange may be nil.
func NewDecorations(onChange func(uri protocol.DocumentURI, source string)) *Decorations {
	return &Decorations{
		sets:     newTable[[]protocol.TextDocumentDecoration](),
		onChange: onChange,
	}
}

// Publish replaces the decorations source sent for the document.
func (d *Decorations) Publish(source string, params protocol.TextDocumentPublishDecorationsParams) error {
	for _, dec := range params.Decorations {
		if err := dec.Range.Validate(); err != nil {
			return protocol.Errorf(protocol.CodeInvalidParams, "decoration: %v", err)
		}
	}
	uri := params.TextDocument.URI

	d.mu.Lock()
	if len(params.Decorations) == 0 {
		d.sets.delete(uri, source)
	} else {
		d.sets.put(uri, source, append([]protocol.TextDocumentDecoration(nil), params.Decorations...))
	}
	d.mu.Unlock()

	if d.onChange != nil {
		d.onChange(uri, source)
	}
	return nil
}

// ForDocument returns the decorations of every source for uri, in source
// name order.
func (d *Decorations) ForDocument(uri protocol.DocumentURI) []SourceDecorations {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []SourceDecorations
	for _, src := range d.sets.sources(uri) {
		decs, _ := d.sets.get(uri, src)
		out = append(out, SourceDecorations{
			Source:      src,
			Decorations: append([]protocol.TextDocumentDecoration(nil), decs...),
		})
	}
	return out
}

// RemoveSource drops everything source published.
func (d *Decorations) RemoveSource(source string) {
	d.mu.Lock()
	uris := d.sets.dropSource(source)
	d.mu.Unlock()
	if d.onChange != nil {
		for _, uri := range uris {
			d.onChange(uri, source)
		}
	}
}

// Clear drops all decorations without notifying.
func (d *Decorations) Clear() {
	d.mu.Lock()
	d.sets.clear()
	d.mu.Unlock()
}
