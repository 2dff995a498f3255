package router

import (
	"context"
	"encoding/json"

	"github.com/dshills/exthost/internal/protocol"
)

// Routes reports whether method is a feature request the router serves.
func Routes(method string) bool {
	f, ok := protocol.FamilyForMethod(method)
	return ok && f != protocol.FamilyExecuteCommand
}

// Handle decodes raw params for method, routes the request and returns the
// merged result. It lets an embedder speaking JSON-RPC reach the router
// directly.
func (r *Router) Handle(ctx context.Context, method string, raw json.RawMessage) (any, error) {
	switch method {
	case protocol.MethodHover:
		return serve(ctx, raw, r.Hover)
	case protocol.MethodCompletion:
		return serve(ctx, raw, r.Completion)
	case protocol.MethodDefinition:
		return serve(ctx, raw, r.Definition)
	case protocol.MethodTypeDefinition:
		return serve(ctx, raw, r.TypeDefinition)
	case protocol.MethodImplementation:
		return serve(ctx, raw, r.Implementation)
	case protocol.MethodReferences:
		return serve(ctx, raw, r.References)
	case protocol.MethodCodeAction:
		return serve(ctx, raw, r.CodeAction)
	case protocol.MethodCodeLens:
		return serve(ctx, raw, r.CodeLens)
	case protocol.MethodDocumentHighlight:
		return serve(ctx, raw, r.DocumentHighlight)
	case protocol.MethodDocumentLink:
		return serve(ctx, raw, r.DocumentLink)
	case protocol.MethodRename:
		return serve(ctx, raw, r.Rename)
	case protocol.MethodSignatureHelp:
		return serve(ctx, raw, r.SignatureHelp)
	case protocol.MethodDocumentSymbol:
		return serve(ctx, raw, r.DocumentSymbol)
	case protocol.MethodWorkspaceSymbol:
		return serve(ctx, raw, r.WorkspaceSymbol)
	case protocol.MethodFormatting:
		return serve(ctx, raw, r.Formatting)
	case protocol.MethodDocumentColor:
		return serve(ctx, raw, r.DocumentColor)
	}
	return nil, protocol.Errorf(protocol.CodeMethodNotFound, "method not found: %s", method)
}

func serve[P, T any](ctx context.Context, raw json.RawMessage, fn func(context.Context, P) (Response[T], error)) (any, error) {
	var params P
	if !isNull(raw) {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, protocol.Errorf(protocol.CodeInvalidParams, "%v", err)
		}
	}
	resp, err := fn(ctx, params)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}
