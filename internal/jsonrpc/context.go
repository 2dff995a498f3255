package jsonrpc

import (
	"context"

	"github.com/dshills/exthost/internal/protocol"
)

type requestIDKey struct{}

// dispatchKey marks the context of notification handlers with the Conn
// running them.
type dispatchKey struct{}

// RequestID returns the id of the request being served by ctx. ok is false
// while serving a notification.
func RequestID(ctx context.Context) (id protocol.ID, ok bool) {
	id, ok = ctx.Value(requestIDKey{}).(protocol.ID)
	return id, ok
}

// IsNotification reports whether ctx serves a notification.
func IsNotification(ctx context.Context) bool {
	_, ok := RequestID(ctx)
	return !ok
}
