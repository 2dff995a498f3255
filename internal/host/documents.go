package host

import (
	"context"

	"github.com/dshills/exthost/internal/document"
	"github.com/dshills/exthost/internal/protocol"
	"go.uber.org/zap"
)

// OpenDocument opens a document and activates the extensions waiting for
// its language. Activation failures are logged; the document stays open.
func (h *Host) OpenDocument(ctx context.Context, item protocol.TextDocumentItem) (document.Snapshot, error) {
	if h.isClosed() {
		return document.Snapshot{}, ErrClosed
	}
	snap, err := h.docs.Open(item)
	if err != nil {
		return snap, err
	}
	h.stats.DocumentEvent("open")

	h.mu.RLock()
	var lazy []*ext
	for _, id := range h.order {
		if e := h.exts[id]; len(e.def.Languages) > 0 {
			lazy = append(lazy, e)
		}
	}
	started := h.started
	h.mu.RUnlock()
	if started {
		if err := h.activateFor(ctx, map[string]bool{item.LanguageID: true}, lazy...); err != nil {
			h.logger.Warn("activation on open", zap.String("uri", string(item.URI)), zap.Error(err))
		}
	}
	return snap, nil
}

// ChangeDocument applies content changes to an open document.
func (h *Host) ChangeDocument(id protocol.VersionedTextDocumentIdentifier, changes []protocol.TextDocumentContentChangeEvent) (document.Snapshot, error) {
	snap, err := h.docs.Change(id, changes)
	if err == nil {
		h.stats.DocumentEvent("change")
	}
	return snap, err
}

// SaveDocument records a save. text, when set, is the saved content.
func (h *Host) SaveDocument(uri protocol.DocumentURI, text *string) error {
	err := h.docs.Save(uri, text)
	if err == nil {
		h.stats.DocumentEvent("save")
	}
	return err
}

// CloseDocument closes a document.
func (h *Host) CloseDocument(uri protocol.DocumentURI) error {
	err := h.docs.Close(uri)
	if err == nil {
		h.stats.DocumentEvent("close")
	}
	return err
}

// Flush waits until every active extension has been sent the document
// events published so far.
func (h *Host) Flush(ctx context.Context) error {
	return h.docs.Feed().Flush(ctx)
}

func (h *Host) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}
