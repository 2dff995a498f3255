package host

import (
	"context"
	"encoding/json"

	"github.com/dshills/exthost/internal/command"
	"github.com/dshills/exthost/internal/protocol"
)

// remoteCommand sends workspace/executeCommand to the owning extension.
func (h *Host) remoteCommand(ctx context.Context, owner string, params protocol.ExecuteCommandParams) (json.RawMessage, error) {
	c, err := h.client(owner)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.Call(ctx, protocol.MethodExecuteCommand, params, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ExecuteCommand runs a command on the host or on the extension that
// registered it.
func (h *Host) ExecuteCommand(ctx context.Context, params protocol.ExecuteCommandParams) (any, error) {
	return h.Request(ctx, protocol.MethodExecuteCommand, params)
}

// RegisterCommand adds a host-local command.
func (h *Host) RegisterCommand(id string, fn command.Handler) error {
	return h.commands.RegisterLocal(id, fn)
}

// UnregisterCommand removes a host-local command.
func (h *Host) UnregisterCommand(id string) {
	h.commands.UnregisterLocal(id)
}

// Commands lists every registered command id.
func (h *Host) Commands() []string {
	return h.commands.Commands()
}
