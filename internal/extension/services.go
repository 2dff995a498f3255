package extension

import (
	"context"
	"encoding/json"

	"github.com/dshills/exthost/internal/protocol"
)

// Services are the host functions an extension can reach. The ext argument
// is the id of the calling extension.
type Services interface {
	Register(ctx context.Context, ext string, params protocol.RegistrationParams) error
	Unregister(ctx context.Context, ext string, params protocol.UnregistrationParams) error
	PublishDiagnostics(ctx context.Context, ext string, params protocol.PublishDiagnosticsParams) error
	PublishDecorations(ctx context.Context, ext string, params protocol.TextDocumentPublishDecorationsParams) error
	LogMessage(ctx context.Context, ext string, params protocol.LogMessageParams) error
	ShowMessage(ctx context.Context, ext string, params protocol.ShowMessageParams) error
	ShowMessageRequest(ctx context.Context, ext string, params protocol.ShowMessageRequestParams) (*protocol.MessageActionItem, error)
	ShowInput(ctx context.Context, ext string, params protocol.ShowInputParams) (*string, error)
	Telemetry(ctx context.Context, ext string, params protocol.TelemetryEventParams) error
	Configuration(ctx context.Context, ext string, params protocol.ConfigurationParams) ([]json.RawMessage, error)
	UpdateConfiguration(ctx context.Context, ext string, params protocol.ConfigurationUpdateParams) error
	ApplyEdit(ctx context.Context, ext string, params protocol.ApplyWorkspaceEditParams) (protocol.ApplyWorkspaceEditResult, error)
}

// NopServices accepts every notification and answers every request with an
// empty result. Embed it to implement only part of Services.
type NopServices struct{}

func (NopServices) Register(context.Context, string, protocol.RegistrationParams) error { return nil }

func (NopServices) Unregister(context.Context, string, protocol.UnregistrationParams) error {
	return nil
}

func (NopServices) PublishDiagnostics(context.Context, string, protocol.PublishDiagnosticsParams) error {
	return nil
}

func (NopServices) PublishDecorations(context.Context, string, protocol.TextDocumentPublishDecorationsParams) error {
	return nil
}

func (NopServices) LogMessage(context.Context, string, protocol.LogMessageParams) error { return nil }

func (NopServices) ShowMessage(context.Context, string, protocol.ShowMessageParams) error { return nil }

func (NopServices) ShowMessageRequest(context.Context, string, protocol.ShowMessageRequestParams) (*protocol.MessageActionItem, error) {
	return nil, nil
}

func (NopServices) ShowInput(context.Context, string, protocol.ShowInputParams) (*string, error) {
	return nil, nil
}

func (NopServices) Telemetry(context.Context, string, protocol.TelemetryEventParams) error { return nil }

func (NopServices) Configuration(_ context.Context, _ string, params protocol.ConfigurationParams) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(params.Items))
	for i := range out {
		out[i] = json.RawMessage("null")
	}
	return out, nil
}

func (NopServices) UpdateConfiguration(context.Context, string, protocol.ConfigurationUpdateParams) error {
	return nil
}

func (NopServices) ApplyEdit(context.Context, string, protocol.ApplyWorkspaceEditParams) (protocol.ApplyWorkspaceEditResult, error) {
	return protocol.ApplyWorkspaceEditResult{FailureReason: "edits are not supported"}, nil
}

// dispatch decodes params for an extension to host method and calls the
// matching service.
func dispatch(ctx context.Context, svc Services, ext, method string, raw json.RawMessage) (any, error) {
	switch method {
	case protocol.MethodRegister:
		return call(raw, func(p protocol.RegistrationParams) (any, error) {
			return nil, svc.Register(ctx, ext, p)
		})
	case protocol.MethodUnregister:
		return call(raw, func(p protocol.UnregistrationParams) (any, error) {
			return nil, svc.Unregister(ctx, ext, p)
		})
	case protocol.MethodPublishDiagnostics:
		return call(raw, func(p protocol.PublishDiagnosticsParams) (any, error) {
			return nil, svc.PublishDiagnostics(ctx, ext, p)
		})
	case protocol.MethodPublishDecorations:
		return call(raw, func(p protocol.TextDocumentPublishDecorationsParams) (any, error) {
			return nil, svc.PublishDecorations(ctx, ext, p)
		})
	case protocol.MethodLogMessage:
		return call(raw, func(p protocol.LogMessageParams) (any, error) {
			return nil, svc.LogMessage(ctx, ext, p)
		})
	case protocol.MethodShowMessage:
		return call(raw, func(p protocol.ShowMessageParams) (any, error) {
			return nil, svc.ShowMessage(ctx, ext, p)
		})
	case protocol.MethodShowRequest:
		return call(raw, func(p protocol.ShowMessageRequestParams) (any, error) {
			return svc.ShowMessageRequest(ctx, ext, p)
		})
	case protocol.MethodShowInput:
		return call(raw, func(p protocol.ShowInputParams) (any, error) {
			return svc.ShowInput(ctx, ext, p)
		})
	case protocol.MethodTelemetry:
		return call(raw, func(p protocol.TelemetryEventParams) (any, error) {
			return nil, svc.Telemetry(ctx, ext, p)
		})
	case protocol.MethodConfiguration:
		return call(raw, func(p protocol.ConfigurationParams) (any, error) {
			return svc.Configuration(ctx, ext, p)
		})
	case protocol.MethodConfigUpdate:
		return call(raw, func(p protocol.ConfigurationUpdateParams) (any, error) {
			return nil, svc.UpdateConfiguration(ctx, ext, p)
		})
	case protocol.MethodApplyEdit:
		return call(raw, func(p protocol.ApplyWorkspaceEditParams) (any, error) {
			return svc.ApplyEdit(ctx, ext, p)
		})
	}
	return nil, protocol.Errorf(protocol.CodeMethodNotFound, "method not found: %s", method)
}

func call[P any](raw json.RawMessage, fn func(P) (any, error)) (any, error) {
	var params P
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, protocol.Errorf(protocol.CodeInvalidParams, "%v", err)
		}
	}
	return fn(params)
}
