package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dshills/exthost/internal/jsonrpc"
	"github.com/dshills/exthost/internal/protocol"
)

// Client sends extension to host messages.
type Client struct {
	conn *jsonrpc.Conn
}

// PublishDiagnostics replaces the extension's diagnostics for a document.
func (c *Client) PublishDiagnostics(ctx context.Context, params protocol.PublishDiagnosticsParams) error {
	if params.Diagnostics == nil {
		params.Diagnostics = []protocol.Diagnostic{}
	}
	return c.conn.Notify(ctx, protocol.MethodPublishDiagnostics, params)
}

// PublishDecorations replaces the extension's decorations for a document.
func (c *Client) PublishDecorations(ctx context.Context, params protocol.TextDocumentPublishDecorationsParams) error {
	if params.Decorations == nil {
		params.Decorations = []protocol.TextDocumentDecoration{}
	}
	return c.conn.Notify(ctx, protocol.MethodPublishDecorations, params)
}

// LogMessage writes to the host log.
func (c *Client) LogMessage(ctx context.Context, typ protocol.MessageType, format string, args ...any) error {
	return c.conn.Notify(ctx, protocol.MethodLogMessage, protocol.LogMessageParams{
		Type:    typ,
		Message: fmt.Sprintf(format, args...),
	})
}

// ShowMessage asks the host to show a message.
func (c *Client) ShowMessage(ctx context.Context, typ protocol.MessageType, message string) error {
	return c.conn.Notify(ctx, protocol.MethodShowMessage, protocol.ShowMessageParams{Type: typ, Message: message})
}

// ShowMessageRequest shows a message with choices and returns the chosen
// action, or nil when the message was dismissed.
func (c *Client) ShowMessageRequest(ctx context.Context, params protocol.ShowMessageRequestParams) (*protocol.MessageActionItem, error) {
	var out *protocol.MessageActionItem
	if err := c.conn.Call(ctx, protocol.MethodShowRequest, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ShowInput prompts for a string. The result is nil when the prompt was
// cancelled.
func (c *Client) ShowInput(ctx context.Context, params protocol.ShowInputParams) (*string, error) {
	var out *string
	if err := c.conn.Call(ctx, protocol.MethodShowInput, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Telemetry reports a telemetry event.
func (c *Client) Telemetry(ctx context.Context, name string, properties map[string]any) error {
	return c.conn.Notify(ctx, protocol.MethodTelemetry, protocol.TelemetryEventParams{Name: name, Properties: properties})
}

// Configuration fetches settings sections, one value per item.
func (c *Client) Configuration(ctx context.Context, items ...protocol.ConfigurationItem) ([]json.RawMessage, error) {
	var out []json.RawMessage
	if err := c.conn.Call(ctx, protocol.MethodConfiguration, protocol.ConfigurationParams{Items: items}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateConfiguration sets the settings value at path. A nil value removes
// the key.
func (c *Client) UpdateConfiguration(ctx context.Context, path []any, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.conn.Call(ctx, protocol.MethodConfigUpdate, protocol.ConfigurationUpdateParams{Path: path, Value: raw}, nil)
}

// ApplyEdit asks the host to apply a workspace edit.
func (c *Client) ApplyEdit(ctx context.Context, params protocol.ApplyWorkspaceEditParams) (protocol.ApplyWorkspaceEditResult, error) {
	var out protocol.ApplyWorkspaceEditResult
	err := c.conn.Call(ctx, protocol.MethodApplyEdit, params, &out)
	return out, err
}

// Register adds dynamic registrations.
func (c *Client) Register(ctx context.Context, regs ...protocol.Registration) error {
	return c.conn.Call(ctx, protocol.MethodRegister, protocol.RegistrationParams{Registrations: regs}, nil)
}

// Unregister removes dynamic registrations.
func (c *Client) Unregister(ctx context.Context, regs ...protocol.Unregistration) error {
	return c.conn.Call(ctx, protocol.MethodUnregister, protocol.UnregistrationParams{Unregisterations: regs}, nil)
}
