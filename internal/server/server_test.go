package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dshills/exthost/internal/jsonrpc"
	"github.com/dshills/exthost/internal/lifecycle"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const uri = protocol.DocumentURI("file:///src/main.go")

type harness struct {
	srv    *Server
	host   *jsonrpc.Conn
	served chan error
	notes  chan *hostNote
}

type hostNote struct {
	method string
	params json.RawMessage
}

// start serves srv over a pipe and returns the host end.
func start(t *testing.T, srv *Server) *harness {
	t.Helper()
	a, b := jsonrpc.Pipe()
	h := &harness{srv: srv, served: make(chan error, 1), notes: make(chan *hostNote, 16)}
	h.host = jsonrpc.NewConn(a, func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		switch method {
		case protocol.MethodShowRequest:
			return protocol.MessageActionItem{Title: "Yes"}, nil
		case protocol.MethodConfiguration:
			return []any{map[string]any{"tabSize": 4}}, nil
		}
		if jsonrpc.IsNotification(ctx) {
			h.notes <- &hostNote{method: method, params: params}
		}
		return nil, nil
	}, jsonrpc.WithLogger(zaptest.NewLogger(t).Named("host")))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.host.Start(ctx)
	go func() { h.served <- srv.Serve(ctx, b) }()
	t.Cleanup(func() { h.host.Close() })
	return h
}

func (h *harness) initialize(t *testing.T) protocol.InitializeResult {
	t.Helper()
	var res protocol.InitializeResult
	require.NoError(t, h.host.Call(context.Background(), protocol.MethodInitialize, protocol.InitializeParams{
		ProtocolVersion: protocol.CurrentRevision,
		Capabilities:    protocol.DefaultClientCapabilities(),
	}, &res))
	require.NoError(t, h.host.Notify(context.Background(), protocol.MethodInitialized, protocol.InitializedParams{}))
	return res
}

func newServer(t *testing.T, opts ...Option) *Server {
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(protocol.Info{Name: "gopher", Version: "0.1.0"}, opts...)
}

func TestServer_RequestBeforeInitialize(t *testing.T) {
	srv := newServer(t)
	srv.OnHover(func(context.Context, protocol.HoverParams) (*protocol.Hover, error) { return nil, nil })
	h := start(t, srv)

	err := h.host.Call(context.Background(), protocol.MethodHover, protocol.HoverParams{}, nil)
	assert.ErrorIs(t, err, protocol.ErrNotInitialized)
}

func TestServer_SecondInitializeFails(t *testing.T) {
	h := start(t, newServer(t))
	h.initialize(t)

	err := h.host.Call(context.Background(), protocol.MethodInitialize, protocol.InitializeParams{}, nil)
	require.Error(t, err)
	assert.Equal(t, protocol.CodeAlreadyInitialized, protocol.CodeOf(err))
	assert.Equal(t, -32003, protocol.CodeOf(err))
}

func TestServer_CapabilitiesFollowHandlers(t *testing.T) {
	srv := newServer(t, WithSyncKind(protocol.SyncFull))
	srv.OnHover(func(context.Context, protocol.HoverParams) (*protocol.Hover, error) { return nil, nil })
	srv.SetCapability(protocol.FamilyCompletion, protocol.WithOptions(protocol.CompletionOptions{TriggerCharacters: []string{"."}}))
	srv.OnCompletion(func(context.Context, protocol.CompletionParams) (*protocol.CompletionList, error) { return nil, nil })
	srv.Command("gopher.tidy", func(context.Context, []any) (any, error) { return nil, nil })
	h := start(t, srv)

	res := h.initialize(t)
	assert.Equal(t, protocol.CapabilityEnabled, res.Capabilities.HoverProvider.Kind())
	var opts protocol.CompletionOptions
	require.NoError(t, res.Capabilities.CompletionProvider.Options(&opts))
	assert.Equal(t, []string{"."}, opts.TriggerCharacters)
	var cmds protocol.ExecuteCommandOptions
	require.NoError(t, res.Capabilities.ExecuteCommandProvider.Options(&cmds))
	assert.Equal(t, []string{"gopher.tidy"}, cmds.Commands)
	assert.Equal(t, protocol.SyncFull, res.Capabilities.SyncKind())
	assert.False(t, res.Capabilities.Supports(protocol.FamilyRename))
	require.NotNil(t, res.ServerInfo)
	assert.Equal(t, "gopher", res.ServerInfo.Name)
}

func TestServer_HoverReadsMirroredDocument(t *testing.T) {
	srv := newServer(t)
	srv.OnHover(func(_ context.Context, p protocol.HoverParams) (*protocol.Hover, error) {
		doc, ok := srv.Document(p.TextDocument.URI)
		if !ok {
			return nil, nil
		}
		return &protocol.Hover{Contents: protocol.MarkupContent{Kind: protocol.MarkupKindPlainText, Value: doc.Text}}, nil
	})
	h := start(t, srv)
	h.initialize(t)

	ctx := context.Background()
	require.NoError(t, h.host.Notify(ctx, protocol.MethodDidOpen, protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "go", Version: 1, Text: "package main"},
	}))
	require.NoError(t, h.host.Notify(ctx, protocol.MethodDidChange, protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{URI: uri, Version: 2},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{
			Range: &protocol.Range{Start: protocol.Position{Character: 8}, End: protocol.Position{Character: 12}},
			Text:  "lib",
		}},
	}))

	var hover protocol.Hover
	require.NoError(t, h.host.Call(ctx, protocol.MethodHover, protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{TextDocument: protocol.TextDocumentIdentifier{URI: uri}},
	}, &hover))
	assert.Equal(t, "package lib", hover.Contents.Value)

	require.NoError(t, h.host.Notify(ctx, protocol.MethodDidClose, protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}))
	var empty *protocol.Hover
	require.NoError(t, h.host.Call(ctx, protocol.MethodHover, protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{TextDocument: protocol.TextDocumentIdentifier{URI: uri}},
	}, &empty))
	assert.Nil(t, empty)
}

func TestServer_ExecuteCommand(t *testing.T) {
	srv := newServer(t)
	srv.Command("gopher.echo", func(_ context.Context, args []any) (any, error) {
		return args[0], nil
	})
	h := start(t, srv)
	h.initialize(t)

	var out string
	require.NoError(t, h.host.Call(context.Background(), protocol.MethodExecuteCommand,
		protocol.ExecuteCommandParams{Command: "gopher.echo", Arguments: []any{"hi"}}, &out))
	assert.Equal(t, "hi", out)

	err := h.host.Call(context.Background(), protocol.MethodExecuteCommand,
		protocol.ExecuteCommandParams{Command: "gopher.nope"}, nil)
	assert.ErrorIs(t, err, protocol.ErrCommandNotFound)
}

func TestServer_InvalidParams(t *testing.T) {
	srv := newServer(t)
	srv.OnHover(func(context.Context, protocol.HoverParams) (*protocol.Hover, error) { return nil, nil })
	h := start(t, srv)
	h.initialize(t)
	err := h.host.Call(context.Background(), protocol.MethodHover, map[string]any{"position": map[string]int{"line": 0, "character": 0}}, nil)
	assert.ErrorIs(t, err, protocol.ErrInvalidParams)
}

func TestServer_UnknownRequest(t *testing.T) {
	h := start(t, newServer(t))
	h.initialize(t)
	err := h.host.Call(context.Background(), protocol.MethodRename, protocol.RenameParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{TextDocument: protocol.TextDocumentIdentifier{URI: uri}},
		NewName:                    "x",
	}, nil)
	assert.ErrorIs(t, err, protocol.ErrMethodNotFound)
}

func TestServer_ShutdownThenExit(t *testing.T) {
	srv := newServer(t)
	srv.OnHover(func(context.Context, protocol.HoverParams) (*protocol.Hover, error) { return nil, nil })
	h := start(t, srv)
	h.initialize(t)
	ctx := context.Background()

	require.NoError(t, h.host.Call(ctx, protocol.MethodShutdown, nil, nil))
	assert.Equal(t, lifecycle.StateShuttingDown, srv.State())

	err := h.host.Call(ctx, protocol.MethodHover, protocol.HoverParams{}, nil)
	assert.ErrorIs(t, err, protocol.ErrInvalidRequest)

	require.NoError(t, h.host.Notify(ctx, protocol.MethodExit, nil))
	select {
	case err := <-h.served:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit")
	}
	assert.Equal(t, 0, srv.ExitCode())
	assert.Equal(t, lifecycle.StateExited, srv.State())
}

func TestServer_ExitWithoutShutdown(t *testing.T) {
	srv := newServer(t)
	h := start(t, srv)
	h.initialize(t)

	require.NoError(t, h.host.Notify(context.Background(), protocol.MethodExit, nil))
	select {
	case <-srv.Exited():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit")
	}
	assert.Equal(t, 1, srv.ExitCode())
}

func TestServer_FailedInitializeCanRetry(t *testing.T) {
	srv := newServer(t)
	attempts := 0
	srv.OnInitialize(func(context.Context, protocol.InitializeParams) error {
		attempts++
		if attempts == 1 {
			return protocol.Errorf(protocol.CodeInternalError, "not yet")
		}
		return nil
	})
	h := start(t, srv)

	err := h.host.Call(context.Background(), protocol.MethodInitialize, protocol.InitializeParams{}, nil)
	assert.ErrorIs(t, err, protocol.ErrInternal)
	assert.Equal(t, lifecycle.StateUninitialized, srv.State())

	h.initialize(t)
	assert.Equal(t, 2, attempts)
}

func TestServer_ClientServices(t *testing.T) {
	srv := newServer(t)
	ready := make(chan struct{})
	srv.OnInitialized(func(context.Context) { close(ready) })
	h := start(t, srv)
	h.initialize(t)
	<-ready

	ctx := context.Background()
	c := srv.Client()
	require.NotNil(t, c)

	require.NoError(t, c.PublishDiagnostics(ctx, protocol.PublishDiagnosticsParams{URI: uri}))
	note := <-h.notes
	assert.Equal(t, protocol.MethodPublishDiagnostics, note.method)
	assert.JSONEq(t, `{"uri":"file:///src/main.go","diagnostics":[]}`, string(note.params))

	require.NoError(t, c.LogMessage(ctx, protocol.MessageInfo, "loaded %d rules", 3))
	note = <-h.notes
	assert.Equal(t, protocol.MethodLogMessage, note.method)
	assert.JSONEq(t, `{"type":3,"message":"loaded 3 rules"}`, string(note.params))

	choice, err := c.ShowMessageRequest(ctx, protocol.ShowMessageRequestParams{Message: "Apply?"})
	require.NoError(t, err)
	require.NotNil(t, choice)
	assert.Equal(t, "Yes", choice.Title)

	values, err := c.Configuration(ctx, protocol.ConfigurationItem{Section: "editor"})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.JSONEq(t, `{"tabSize":4}`, string(values[0]))
}

func TestServer_ServeTwice(t *testing.T) {
	srv := newServer(t)
	h := start(t, srv)
	h.initialize(t)
	a, _ := jsonrpc.Pipe()
	assert.ErrorIs(t, srv.Serve(context.Background(), a), ErrAlreadyServing)
}
