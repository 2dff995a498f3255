package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/host"
	"github.com/dshills/exthost/internal/jsonrpc"
	"github.com/dshills/exthost/internal/protocol"
	"go.uber.org/zap"
)

// attach accepts an extension that dials the host. The extension names
// itself with ?id= and may limit its documents with ?languages=go,lua. The
// handler holds the connection until the session ends, then removes the
// extension.
func (s *Server) attach(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: missing id", protocol.ErrInvalidParams))
		return
	}
	var langs []string
	for _, l := range strings.Split(q.Get("languages"), ",") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	rt := extension.NewAttached(jsonrpc.NewWebSocketStream(conn))
	logger := s.logger.With(zap.String("extension", id), zap.String("remote", r.RemoteAddr))

	def := host.Extension{ID: id, Runtime: rt, Languages: langs}
	for _, l := range langs {
		def.Selector = append(def.Selector, protocol.DocumentFilter{Language: l})
	}
	// The session outlives the upgrade request's deadlines.
	ctx := context.WithoutCancel(r.Context())
	if err := s.host.Add(ctx, def); err != nil {
		logger.Warn("attach rejected", zap.Error(err))
		status := websocket.StatusInternalError
		if errors.Is(err, host.ErrDuplicateExtension) || errors.Is(err, protocol.ErrInvalidParams) {
			status = websocket.StatusPolicyViolation
		}
		_ = conn.Close(status, truncate(err.Error()))
		if !errors.Is(err, host.ErrDuplicateExtension) {
			_ = s.host.Remove(ctx, id)
		}
		return
	}
	logger.Info("extension attached")

	<-rt.Closed()
	if err := s.host.Remove(ctx, id); err != nil && !errors.Is(err, host.ErrUnknownExtension) {
		logger.Debug("remove attached extension", zap.Error(err))
	}
	logger.Info("extension detached")
}

// truncate keeps a close reason within the websocket control frame limit.
func truncate(reason string) string {
	const limit = 120
	if len(reason) > limit {
		return reason[:limit]
	}
	return reason
}
