package router

import (
	"context"
	"encoding/json"

	"github.com/dshills/exthost/internal/protocol"
)

func respond[T any](o *outcome, v T) Response[T] {
	return Response[T]{Result: v, Errors: o.errors, Providers: o.providers}
}

// Hover returns the first non-empty hover.
func (r *Router) Hover(ctx context.Context, params protocol.HoverParams) (Response[*protocol.Hover], error) {
	o, err := r.route(ctx, protocol.MethodHover, params.TextDocument.URI, params)
	if err != nil {
		return Response[*protocol.Hover]{}, err
	}
	v := first(protocol.MethodHover, &o, decodeOne(func(h *protocol.Hover) bool { return h.IsEmpty() }))
	return respond(&o, v), nil
}

// SignatureHelp returns the first non-empty signature help.
func (r *Router) SignatureHelp(ctx context.Context, params protocol.SignatureHelpParams) (Response[*protocol.SignatureHelp], error) {
	o, err := r.route(ctx, protocol.MethodSignatureHelp, params.TextDocument.URI, params)
	if err != nil {
		return Response[*protocol.SignatureHelp]{}, err
	}
	v := first(protocol.MethodSignatureHelp, &o, decodeOne(func(s *protocol.SignatureHelp) bool { return s.IsEmpty() }))
	return respond(&o, v), nil
}

// Rename returns the first non-empty workspace edit.
func (r *Router) Rename(ctx context.Context, params protocol.RenameParams) (Response[*protocol.WorkspaceEdit], error) {
	o, err := r.route(ctx, protocol.MethodRename, params.TextDocument.URI, params)
	if err != nil {
		return Response[*protocol.WorkspaceEdit]{}, err
	}
	v := first(protocol.MethodRename, &o, decodeOne(func(e *protocol.WorkspaceEdit) bool { return e.IsEmpty() }))
	return respond(&o, v), nil
}

// Formatting returns the first non-empty edit list.
func (r *Router) Formatting(ctx context.Context, params protocol.DocumentFormattingParams) (Response[[]protocol.TextEdit], error) {
	o, err := r.route(ctx, protocol.MethodFormatting, params.TextDocument.URI, params)
	if err != nil {
		return Response[[]protocol.TextEdit]{}, err
	}
	v := first(protocol.MethodFormatting, &o, decodeEdits)
	if v == nil {
		v = []protocol.TextEdit{}
	}
	return respond(&o, v), nil
}

// Completion merges the completion items of every provider. The merged
// list is incomplete when any provider's list is.
func (r *Router) Completion(ctx context.Context, params protocol.CompletionParams) (Response[protocol.CompletionList], error) {
	o, err := r.route(ctx, protocol.MethodCompletion, params.TextDocument.URI, params)
	if err != nil {
		return Response[protocol.CompletionList]{}, err
	}
	incomplete := false
	items := union(protocol.MethodCompletion, &o, func(raw json.RawMessage) ([]protocol.CompletionItem, error) {
		list, err := decodeCompletion(raw)
		incomplete = incomplete || list.IsIncomplete
		return list.Items, err
	}, completionKey)
	return respond(&o, protocol.CompletionList{IsIncomplete: incomplete, Items: items}), nil
}

// Definition merges definition locations.
func (r *Router) Definition(ctx context.Context, params protocol.DefinitionParams) (Response[[]protocol.Location], error) {
	return r.locations(ctx, protocol.MethodDefinition, params.TextDocument.URI, params)
}

// TypeDefinition merges type definition locations.
func (r *Router) TypeDefinition(ctx context.Context, params protocol.DefinitionParams) (Response[[]protocol.Location], error) {
	return r.locations(ctx, protocol.MethodTypeDefinition, params.TextDocument.URI, params)
}

// Implementation merges implementation locations.
func (r *Router) Implementation(ctx context.Context, params protocol.DefinitionParams) (Response[[]protocol.Location], error) {
	return r.locations(ctx, protocol.MethodImplementation, params.TextDocument.URI, params)
}

// References merges reference locations.
func (r *Router) References(ctx context.Context, params protocol.ReferenceParams) (Response[[]protocol.Location], error) {
	return r.locations(ctx, protocol.MethodReferences, params.TextDocument.URI, params)
}

func (r *Router) locations(ctx context.Context, method string, uri protocol.DocumentURI, params any) (Response[[]protocol.Location], error) {
	o, err := r.route(ctx, method, uri, params)
	if err != nil {
		return Response[[]protocol.Location]{}, err
	}
	return respond(&o, union(method, &o, decodeLocations, locationKey)), nil
}

// CodeAction merges code actions.
func (r *Router) CodeAction(ctx context.Context, params protocol.CodeActionParams) (Response[[]protocol.CodeAction], error) {
	o, err := r.route(ctx, protocol.MethodCodeAction, params.TextDocument.URI, params)
	if err != nil {
		return Response[[]protocol.CodeAction]{}, err
	}
	return respond(&o, union(protocol.MethodCodeAction, &o, decodeCodeActions, codeActionKey)), nil
}

// CodeLens merges code lenses.
func (r *Router) CodeLens(ctx context.Context, params protocol.CodeLensParams) (Response[[]protocol.CodeLens], error) {
	o, err := r.route(ctx, protocol.MethodCodeLens, params.TextDocument.URI, params)
	if err != nil {
		return Response[[]protocol.CodeLens]{}, err
	}
	return respond(&o, union(protocol.MethodCodeLens, &o, decodeList[protocol.CodeLens], codeLensKey)), nil
}

// DocumentHighlight merges highlights.
func (r *Router) DocumentHighlight(ctx context.Context, params protocol.DocumentHighlightParams) (Response[[]protocol.DocumentHighlight], error) {
	o, err := r.route(ctx, protocol.MethodDocumentHighlight, params.TextDocument.URI, params)
	if err != nil {
		return Response[[]protocol.DocumentHighlight]{}, err
	}
	return respond(&o, union(protocol.MethodDocumentHighlight, &o, decodeList[protocol.DocumentHighlight], highlightKey)), nil
}

// DocumentLink merges document links.
func (r *Router) DocumentLink(ctx context.Context, params protocol.DocumentLinkParams) (Response[[]protocol.DocumentLink], error) {
	o, err := r.route(ctx, protocol.MethodDocumentLink, params.TextDocument.URI, params)
	if err != nil {
		return Response[[]protocol.DocumentLink]{}, err
	}
	return respond(&o, union(protocol.MethodDocumentLink, &o, decodeList[protocol.DocumentLink], linkKey)), nil
}

// DocumentSymbol merges the symbols of one document.
func (r *Router) DocumentSymbol(ctx context.Context, params protocol.DocumentSymbolParams) (Response[[]protocol.SymbolInformation], error) {
	o, err := r.route(ctx, protocol.MethodDocumentSymbol, params.TextDocument.URI, params)
	if err != nil {
		return Response[[]protocol.SymbolInformation]{}, err
	}
	return respond(&o, union(protocol.MethodDocumentSymbol, &o, decodeList[protocol.SymbolInformation], symbolKey)), nil
}

// WorkspaceSymbol merges workspace symbols from every provider serving
// workspace/symbol. It is not scoped to a document.
func (r *Router) WorkspaceSymbol(ctx context.Context, params protocol.WorkspaceSymbolParams) (Response[[]protocol.SymbolInformation], error) {
	o, err := r.route(ctx, protocol.MethodWorkspaceSymbol, "", params)
	if err != nil {
		return Response[[]protocol.SymbolInformation]{}, err
	}
	return respond(&o, union(protocol.MethodWorkspaceSymbol, &o, decodeList[protocol.SymbolInformation], symbolKey)), nil
}

// DocumentColor merges color information.
func (r *Router) DocumentColor(ctx context.Context, params protocol.DocumentColorParams) (Response[[]protocol.ColorInformation], error) {
	o, err := r.route(ctx, protocol.MethodDocumentColor, params.TextDocument.URI, params)
	if err != nil {
		return Response[[]protocol.ColorInformation]{}, err
	}
	return respond(&o, union(protocol.MethodDocumentColor, &o, decodeList[protocol.ColorInformation], colorKey)), nil
}
