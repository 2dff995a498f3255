package host

import (
	"context"
	"time"

	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/watcher"
	"go.uber.org/zap"
)

// broadcastTimeout bounds a notification sent to every extension outside
// of a caller's context.
const broadcastTimeout = 5 * time.Second

// broadcast sends a notification to every active extension accepted by
// want. Failures are logged.
func (h *Host) broadcast(ctx context.Context, method string, params any, want func(*extension.Client) bool) {
	for _, c := range h.active() {
		if want != nil && !want(c) {
			continue
		}
		if err := c.Notify(ctx, method, params); err != nil {
			h.logger.Debug("broadcast failed", zap.String("extension", c.ID()), zap.String("method", method), zap.Error(err))
		}
	}
}

func understands(method string) func(*extension.Client) bool {
	return func(c *extension.Client) bool {
		return c.Negotiated().Understands(method)
	}
}

// configurationChanged tells every extension that the settings changed.
func (h *Host) configurationChanged(ctx context.Context) {
	h.broadcast(ctx, protocol.MethodDidChangeConfiguration,
		protocol.DidChangeConfigurationParams{Settings: h.settings.Raw()},
		understands(protocol.MethodDidChangeConfiguration))
}

// UpdateSettings replaces the settings document and notifies extensions.
func (h *Host) UpdateSettings(ctx context.Context, doc []byte) error {
	if err := h.settings.Replace(doc); err != nil {
		return err
	}
	h.configurationChanged(ctx)
	return nil
}

// WorkspaceFolders returns the current folders.
func (h *Host) WorkspaceFolders() []protocol.WorkspaceFolder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]protocol.WorkspaceFolder(nil), h.folders...)
}

// ChangeWorkspaceFolders adds and removes folders and notifies the
// extensions that declared folder change notifications. Added folders are
// watched when watching is on.
func (h *Host) ChangeWorkspaceFolders(ctx context.Context, added, removed []protocol.WorkspaceFolder) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	gone := make(map[protocol.DocumentURI]bool, len(removed))
	for _, f := range removed {
		gone[f.URI] = true
	}
	kept := h.folders[:0:0]
	present := make(map[protocol.DocumentURI]bool)
	for _, f := range h.folders {
		if !gone[f.URI] {
			kept = append(kept, f)
			present[f.URI] = true
		}
	}
	var fresh []protocol.WorkspaceFolder
	for _, f := range added {
		if !present[f.URI] {
			kept = append(kept, f)
			present[f.URI] = true
			fresh = append(fresh, f)
		}
	}
	h.folders = kept
	w := h.watch
	h.mu.Unlock()

	if w != nil {
		for _, f := range fresh {
			if err := w.WatchRecursive(protocol.URIToFilePath(f.URI)); err != nil {
				h.logger.Warn("watch folder", zap.String("folder", string(f.URI)), zap.Error(err))
			}
		}
	}

	ev := protocol.DidChangeWorkspaceFoldersParams{Event: protocol.WorkspaceFoldersChangeEvent{
		Added:   nonNil(fresh),
		Removed: nonNil(removed),
	}}
	h.broadcast(ctx, protocol.MethodDidChangeWorkspaceFolders, ev, func(c *extension.Client) bool {
		ws := c.Negotiated().Capabilities.Workspace
		return ws != nil && ws.WorkspaceFolders != nil && ws.WorkspaceFolders.ChangeNotifications
	})
	return nil
}

func nonNil(fs []protocol.WorkspaceFolder) []protocol.WorkspaceFolder {
	if fs == nil {
		return []protocol.WorkspaceFolder{}
	}
	return fs
}

// Watch starts watching the workspace folders. Changes to files matching
// globs (all files when none are given) are sent to extensions as
// workspace/didChangeWatchedFiles.
func (h *Host) Watch(globs ...string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if h.watch != nil {
		h.mu.Unlock()
		return nil
	}
	w, err := watcher.New(h.filesChanged,
		watcher.WithGlobs(globs...),
		watcher.WithDelay(h.watchDelay),
		watcher.WithLogger(h.logger.Named("watcher")),
	)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	h.watch = w
	folders := append([]protocol.WorkspaceFolder(nil), h.folders...)
	h.mu.Unlock()

	for _, f := range folders {
		if err := w.WatchRecursive(protocol.URIToFilePath(f.URI)); err != nil {
			h.logger.Warn("watch folder", zap.String("folder", string(f.URI)), zap.Error(err))
		}
	}
	return nil
}

func (h *Host) filesChanged(events []protocol.FileEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
	defer cancel()
	h.logger.Debug("watched files changed", zap.Int("events", len(events)))
	h.broadcast(ctx, protocol.MethodDidChangeWatchedFiles,
		protocol.DidChangeWatchedFilesParams{Changes: events},
		understands(protocol.MethodDidChangeWatchedFiles))
}
