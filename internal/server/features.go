package server

import (
	"context"

	"github.com/dshills/exthost/internal/protocol"
)

// OnHover serves textDocument/hover.
func (s *Server) OnHover(fn func(context.Context, protocol.HoverParams) (*protocol.Hover, error)) {
	Handle(s, protocol.MethodHover, fn)
}

// OnCompletion serves textDocument/completion.
func (s *Server) OnCompletion(fn func(context.Context, protocol.CompletionParams) (*protocol.CompletionList, error)) {
	Handle(s, protocol.MethodCompletion, fn)
}

// OnDefinition serves textDocument/definition.
func (s *Server) OnDefinition(fn func(context.Context, protocol.DefinitionParams) ([]protocol.Location, error)) {
	Handle(s, protocol.MethodDefinition, fn)
}

// OnTypeDefinition serves textDocument/typeDefinition.
func (s *Server) OnTypeDefinition(fn func(context.Context, protocol.DefinitionParams) ([]protocol.Location, error)) {
	Handle(s, protocol.MethodTypeDefinition, fn)
}

// OnImplementation serves textDocument/implementation.
func (s *Server) OnImplementation(fn func(context.Context, protocol.DefinitionParams) ([]protocol.Location, error)) {
	Handle(s, protocol.MethodImplementation, fn)
}

// OnReferences serves textDocument/references.
func (s *Server) OnReferences(fn func(context.Context, protocol.ReferenceParams) ([]protocol.Location, error)) {
	Handle(s, protocol.MethodReferences, fn)
}

// OnCodeAction serves textDocument/codeAction.
func (s *Server) OnCodeAction(fn func(context.Context, protocol.CodeActionParams) ([]protocol.CodeAction, error)) {
	Handle(s, protocol.MethodCodeAction, fn)
}

// OnCodeLens serves textDocument/codeLens.
func (s *Server) OnCodeLens(fn func(context.Context, protocol.CodeLensParams) ([]protocol.CodeLens, error)) {
	Handle(s, protocol.MethodCodeLens, fn)
}

// OnDocumentHighlight serves textDocument/documentHighlight.
func (s *Server) OnDocumentHighlight(fn func(context.Context, protocol.DocumentHighlightParams) ([]protocol.DocumentHighlight, error)) {
	Handle(s, protocol.MethodDocumentHighlight, fn)
}

// OnDocumentLink serves textDocument/documentLink.
func (s *Server) OnDocumentLink(fn func(context.Context, protocol.DocumentLinkParams) ([]protocol.DocumentLink, error)) {
	Handle(s, protocol.MethodDocumentLink, fn)
}

// OnRename serves textDocument/rename.
func (s *Server) OnRename(fn func(context.Context, protocol.RenameParams) (*protocol.WorkspaceEdit, error)) {
	Handle(s, protocol.MethodRename, fn)
}

// OnSignatureHelp serves textDocument/signatureHelp.
func (s *Server) OnSignatureHelp(fn func(context.Context, protocol.SignatureHelpParams) (*protocol.SignatureHelp, error)) {
	Handle(s, protocol.MethodSignatureHelp, fn)
}

// OnDocumentSymbol serves textDocument/documentSymbol.
func (s *Server) OnDocumentSymbol(fn func(context.Context, protocol.DocumentSymbolParams) ([]protocol.SymbolInformation, error)) {
	Handle(s, protocol.MethodDocumentSymbol, fn)
}

// OnWorkspaceSymbol serves workspace/symbol.
func (s *Server) OnWorkspaceSymbol(fn func(context.Context, protocol.WorkspaceSymbolParams) ([]protocol.SymbolInformation, error)) {
	Handle(s, protocol.MethodWorkspaceSymbol, fn)
}

// OnFormatting serves textDocument/formatting.
func (s *Server) OnFormatting(fn func(context.Context, protocol.DocumentFormattingParams) ([]protocol.TextEdit, error)) {
	Handle(s, protocol.MethodFormatting, fn)
}

// OnDocumentColor serves textDocument/documentColor.
func (s *Server) OnDocumentColor(fn func(context.Context, protocol.DocumentColorParams) ([]protocol.ColorInformation, error)) {
	Handle(s, protocol.MethodDocumentColor, fn)
}

// OnDidChangeConfiguration observes settings changes.
func (s *Server) OnDidChangeConfiguration(fn func(context.Context, protocol.DidChangeConfigurationParams) error) {
	OnNotification(s, protocol.MethodDidChangeConfiguration, fn)
}

// OnDidChangeWatchedFiles observes watched file events.
func (s *Server) OnDidChangeWatchedFiles(fn func(context.Context, protocol.DidChangeWatchedFilesParams) error) {
	OnNotification(s, protocol.MethodDidChangeWatchedFiles, fn)
}

// OnDidChangeWorkspaceFolders observes workspace folder changes and
// declares support for them.
func (s *Server) OnDidChangeWorkspaceFolders(fn func(context.Context, protocol.DidChangeWorkspaceFoldersParams) error) {
	OnNotification(s, protocol.MethodDidChangeWorkspaceFolders, fn)
	s.mu.Lock()
	s.caps.Workspace = &protocol.ServerWorkspaceCapabilities{
		WorkspaceFolders: &protocol.WorkspaceFoldersServerCapabilities{Supported: true, ChangeNotifications: true},
	}
	s.mu.Unlock()
}

// OnDidOpen observes documents opened by the host, after the extension's
// copy was updated.
func (s *Server) OnDidOpen(fn func(context.Context, protocol.DidOpenTextDocumentParams) error) {
	OnNotification(s, protocol.MethodDidOpen, fn)
}

// OnDidChange observes document changes, after the extension's copy was
// updated.
func (s *Server) OnDidChange(fn func(context.Context, protocol.DidChangeTextDocumentParams) error) {
	OnNotification(s, protocol.MethodDidChange, fn)
}

// OnDidSave observes document saves.
func (s *Server) OnDidSave(fn func(context.Context, protocol.DidSaveTextDocumentParams) error) {
	OnNotification(s, protocol.MethodDidSave, fn)
}

// OnDidClose observes closed documents.
func (s *Server) OnDidClose(fn func(context.Context, protocol.DidCloseTextDocumentParams) error) {
	OnNotification(s, protocol.MethodDidClose, fn)
}
