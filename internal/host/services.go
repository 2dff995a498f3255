package host

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/registry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// services answers the requests and notifications extensions send to
// the host.
type services struct {
	h *Host
}

var _ extension.Services = (*services)(nil)

func (s *services) Register(_ context.Context, ext string, params protocol.RegistrationParams) error {
	e, err := s.h.lookup(ext)
	if err != nil {
		return err
	}
	regs := make([]registry.Registration, 0, len(params.Registrations))
	for _, r := range params.Registrations {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		reg, err := registry.FromProtocol(ext, r, e.def.Selector)
		if err != nil {
			return err
		}
		regs = append(regs, reg)
	}
	if err := s.h.reg.RegisterAll(regs); err != nil {
		return err
	}
	s.h.stats.Registrations(s.h.reg.Len())
	s.h.logger.Debug("registered", zap.String("extension", ext), zap.Int("count", len(regs)))
	return nil
}

func (s *services) Unregister(_ context.Context, ext string, params protocol.UnregistrationParams) error {
	for _, u := range params.Unregisterations {
		reg, ok := s.h.reg.Get(u.ID)
		if !ok {
			return protocol.Errorf(protocol.CodeRegistrationNotFound, "no registration %q", u.ID)
		}
		if reg.Owner != ext {
			return protocol.Errorf(protocol.CodeInvalidParams, "registration %q belongs to %s", u.ID, reg.Owner)
		}
		if err := s.h.reg.Unregister(u.ID); err != nil {
			return err
		}
	}
	s.h.stats.Registrations(s.h.reg.Len())
	return nil
}

func (s *services) PublishDiagnostics(_ context.Context, ext string, params protocol.PublishDiagnosticsParams) error {
	return s.h.diags.Publish(ext, params)
}

func (s *services) PublishDecorations(_ context.Context, ext string, params protocol.TextDocumentPublishDecorationsParams) error {
	return s.h.decorations.Publish(ext, params)
}

// allow applies the extension's message rate limit.
func (s *services) allow(ext string) bool {
	e, err := s.h.lookup(ext)
	if err != nil {
		return false
	}
	if e.limiter.Allow() {
		return true
	}
	s.h.stats.MessageDropped(ext)
	return false
}

func (s *services) LogMessage(_ context.Context, ext string, params protocol.LogMessageParams) error {
	if !s.allow(ext) {
		return nil
	}
	logAt(s.h.logger, params.Type, params.Message, zap.String("extension", ext))
	return nil
}

func (s *services) ShowMessage(ctx context.Context, ext string, params protocol.ShowMessageParams) error {
	return s.h.ui.ShowMessage(ctx, ext, params)
}

func (s *services) ShowMessageRequest(ctx context.Context, ext string, params protocol.ShowMessageRequestParams) (*protocol.MessageActionItem, error) {
	choice, err := s.h.ui.ShowMessageRequest(ctx, ext, params)
	if err != nil || choice == nil {
		return nil, err
	}
	for _, a := range params.Actions {
		if a.Title == choice.Title {
			return choice, nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not one of the offered actions", protocol.ErrInternal, choice.Title)
}

func (s *services) ShowInput(ctx context.Context, ext string, params protocol.ShowInputParams) (*string, error) {
	return s.h.ui.ShowInput(ctx, ext, params)
}

func (s *services) Telemetry(_ context.Context, ext string, params protocol.TelemetryEventParams) error {
	if !s.allow(ext) {
		return nil
	}
	s.h.stats.ExtensionTelemetry(ext, params.Name)
	keys := make([]string, 0, len(params.Properties))
	for k := range params.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s.h.logger.Debug("extension telemetry",
		zap.String("extension", ext),
		zap.String("event", params.Name),
		zap.Strings("properties", keys),
	)
	return nil
}

func (s *services) Configuration(_ context.Context, _ string, params protocol.ConfigurationParams) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(params.Items))
	for i, item := range params.Items {
		out[i] = s.h.settings.Section(item.Section)
	}
	return out, nil
}

func (s *services) UpdateConfiguration(ctx context.Context, ext string, params protocol.ConfigurationUpdateParams) error {
	if err := s.h.settings.Update(params.Path, params.Value); err != nil {
		return err
	}
	s.h.logger.Debug("configuration updated", zap.String("extension", ext), zap.Any("path", params.Path))
	s.h.configurationChanged(ctx)
	return nil
}

// ApplyEdit applies a workspace edit to open documents. Nothing is applied
// unless every target document is open. Documents whose edits fail are
// named in the failure reason.
func (s *services) ApplyEdit(_ context.Context, ext string, params protocol.ApplyWorkspaceEditParams) (protocol.ApplyWorkspaceEditResult, error) {
	if params.Edit.IsEmpty() {
		return protocol.ApplyWorkspaceEditResult{Applied: true}, nil
	}
	uris := make([]protocol.DocumentURI, 0, len(params.Edit.Changes))
	for uri := range params.Edit.Changes {
		if !s.h.docs.IsOpen(uri) {
			return protocol.ApplyWorkspaceEditResult{FailureReason: fmt.Sprintf("document %s is not open", uri)}, nil
		}
		uris = append(uris, uri)
	}
	sort.Slice(uris, func(i, j int) bool { return uris[i] < uris[j] })

	var failed []string
	for _, uri := range uris {
		edits := params.Edit.Changes[uri]
		if len(edits) == 0 {
			continue
		}
		if _, err := s.h.docs.Edit(uri, edits); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", uri, err))
			continue
		}
		s.h.stats.DocumentEvent("edit")
	}
	if len(failed) > 0 {
		return protocol.ApplyWorkspaceEditResult{FailureReason: strings.Join(failed, "; ")}, nil
	}
	s.h.logger.Debug("workspace edit applied", zap.String("extension", ext), zap.String("label", params.Label), zap.Int("documents", len(uris)))
	return protocol.ApplyWorkspaceEditResult{Applied: true}, nil
}
