package extension

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/dshills/exthost/internal/document"
	"github.com/dshills/exthost/internal/jsonrpc"
	"github.com/dshills/exthost/internal/lifecycle"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	goURI = protocol.DocumentURI("file:///src/main.go")
	pyURI = protocol.DocumentURI("file:///src/main.py")
)

type recorder struct {
	NopServices

	mu    sync.Mutex
	diags map[string][]protocol.PublishDiagnosticsParams
	logs  []string
}

func newRecorder() *recorder {
	return &recorder{diags: make(map[string][]protocol.PublishDiagnosticsParams)}
}

func (r *recorder) PublishDiagnostics(_ context.Context, ext string, p protocol.PublishDiagnosticsParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diags[ext] = append(r.diags[ext], p)
	return nil
}

func (r *recorder) LogMessage(_ context.Context, ext string, p protocol.LogMessageParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, ext+": "+p.Message)
	return nil
}

func (r *recorder) ShowMessageRequest(_ context.Context, _ string, p protocol.ShowMessageRequestParams) (*protocol.MessageActionItem, error) {
	if len(p.Actions) == 0 {
		return nil, nil
	}
	return &p.Actions[len(p.Actions)-1], nil
}

func (r *recorder) diagnostics(ext string) []protocol.PublishDiagnosticsParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.PublishDiagnosticsParams(nil), r.diags[ext]...)
}

func newGoServer(t *testing.T) *server.Server {
	srv := server.New(protocol.Info{Name: "gopher"}, server.WithLogger(zaptest.NewLogger(t).Named("ext")))
	srv.OnHover(func(_ context.Context, p protocol.HoverParams) (*protocol.Hover, error) {
		doc, ok := srv.Document(p.TextDocument.URI)
		if !ok {
			return nil, nil
		}
		return &protocol.Hover{Contents: protocol.MarkupContent{Kind: protocol.MarkupKindPlainText, Value: doc.Text}}, nil
	})
	return srv
}

func initParams() protocol.InitializeParams {
	return protocol.InitializeParams{Capabilities: protocol.DefaultClientCapabilities()}
}

func startClient(t *testing.T, rt Runtime, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t).Named("host"))}, opts...)
	c := New("gopher", rt, opts...)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Handshake(t *testing.T) {
	srv := newGoServer(t)
	c := startClient(t, NewInProcess(srv))

	assert.True(t, c.Handshake().IsPending())
	assert.ErrorIs(t, c.Call(context.Background(), protocol.MethodHover, nil, nil), protocol.ErrNotInitialized)

	neg, err := c.Initialize(context.Background(), initParams())
	require.NoError(t, err)
	assert.True(t, neg.Supports(protocol.FamilyHover))
	assert.False(t, neg.Supports(protocol.FamilyCompletion))
	assert.Equal(t, "gopher", neg.ServerName())
	assert.Equal(t, protocol.CurrentRevision, neg.Revision)
	assert.True(t, c.Handshake().IsReady())
	assert.Equal(t, lifecycle.StateReady, c.State())
	require.Eventually(t, func() bool { return srv.State() == lifecycle.StateReady }, time.Second, 5*time.Millisecond)

	regs := c.StaticRegistrations()
	require.NotEmpty(t, regs)
	for _, reg := range regs {
		assert.Equal(t, "gopher", reg.Owner)
		assert.True(t, reg.Static)
	}
}

func TestClient_SecondInitializeIsRejectedLocally(t *testing.T) {
	c := startClient(t, NewInProcess(newGoServer(t)))
	_, err := c.Initialize(context.Background(), initParams())
	require.NoError(t, err)

	_, err = c.Initialize(context.Background(), initParams())
	assert.ErrorIs(t, err, protocol.ErrAlreadyInitialized)
	assert.Equal(t, lifecycle.StateReady, c.State())
}

func TestClient_FailedHandshakeCanBeRetried(t *testing.T) {
	srv := newGoServer(t)
	attempts := 0
	srv.OnInitialize(func(context.Context, protocol.InitializeParams) error {
		attempts++
		if attempts == 1 {
			return errors.New("not yet")
		}
		return nil
	})
	c := startClient(t, NewInProcess(srv))

	_, err := c.Initialize(context.Background(), initParams())
	require.Error(t, err)
	assert.True(t, c.Handshake().IsFailed())
	assert.Equal(t, lifecycle.StateUninitialized, c.State())

	_, err = c.Initialize(context.Background(), initParams())
	require.NoError(t, err)
	assert.True(t, c.Handshake().IsReady())
}

func TestClient_SyncDocuments(t *testing.T) {
	srv := newGoServer(t)
	c := startClient(t, NewInProcess(srv), WithSelector(protocol.DocumentSelector{{Language: "go"}}))
	_, err := c.Initialize(context.Background(), initParams())
	require.NoError(t, err)

	store := document.NewStore(document.WithSyncKind(protocol.SyncIncremental))
	_, err = store.Open(protocol.TextDocumentItem{URI: goURI, LanguageID: "go", Version: 1, Text: "package main\n"})
	require.NoError(t, err)

	sub := c.SyncDocuments(store)
	require.NotNil(t, sub)

	_, err = store.Open(protocol.TextDocumentItem{URI: pyURI, LanguageID: "python", Version: 1, Text: "print()\n"})
	require.NoError(t, err)
	_, err = store.Change(protocol.VersionedTextDocumentIdentifier{URI: goURI, Version: 2}, []protocol.TextDocumentContentChangeEvent{
		{Text: "package main\n\nfunc main() {}\n"},
	})
	require.NoError(t, err)
	require.NoError(t, sub.Flush(context.Background()))

	var hover protocol.Hover
	require.Eventually(t, func() bool {
		doc, ok := srv.Document(goURI)
		return ok && doc.Version == 2
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Call(context.Background(), protocol.MethodHover, protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{TextDocument: protocol.TextDocumentIdentifier{URI: goURI}},
	}, &hover))
	assert.Equal(t, "package main\n\nfunc main() {}\n", hover.Contents.Value)

	_, ok := srv.Document(pyURI)
	assert.False(t, ok)
}

func TestClient_Services(t *testing.T) {
	srv := newGoServer(t)
	rec := newRecorder()
	c := startClient(t, NewInProcess(srv), WithServices(rec))
	_, err := c.Initialize(context.Background(), initParams())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, srv.Client().PublishDiagnostics(ctx, protocol.PublishDiagnosticsParams{
		URI:         goURI,
		Diagnostics: []protocol.Diagnostic{{Message: "unused variable", Severity: protocol.SeverityWarning}},
	}))
	require.NoError(t, srv.Client().LogMessage(ctx, protocol.MessageInfo, "indexed %d files", 3))

	choice, err := srv.Client().ShowMessageRequest(ctx, protocol.ShowMessageRequestParams{
		Type:    protocol.MessageInfo,
		Message: "Reload?",
		Actions: []protocol.MessageActionItem{{Title: "No"}, {Title: "Yes"}},
	})
	require.NoError(t, err)
	require.NotNil(t, choice)
	assert.Equal(t, "Yes", choice.Title)

	vals, err := srv.Client().Configuration(ctx, protocol.ConfigurationItem{Section: "go"})
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.JSONEq(t, "null", string(vals[0]))

	res, err := srv.Client().ApplyEdit(ctx, protocol.ApplyWorkspaceEditParams{})
	require.NoError(t, err)
	assert.False(t, res.Applied)

	require.Eventually(t, func() bool { return len(rec.diagnostics("gopher")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "unused variable", rec.diagnostics("gopher")[0].Diagnostics[0].Message)
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.logs) == 1 && rec.logs[0] == "gopher: indexed 3 files"
	}, time.Second, 5*time.Millisecond)
}

func TestClient_Shutdown(t *testing.T) {
	srv := newGoServer(t)
	c := startClient(t, NewInProcess(srv))
	_, err := c.Initialize(context.Background(), initParams())
	require.NoError(t, err)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, lifecycle.StateExited, c.State())
	assert.Equal(t, 0, srv.ExitCode())
	assert.ErrorIs(t, c.Call(context.Background(), protocol.MethodHover, nil, nil), ErrClosed)

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("connection still open")
	}
}

// pipeRuntime hands the extension end of a pipe to the test.
type pipeRuntime struct {
	ext jsonrpc.Stream
}

func (p *pipeRuntime) Kind() string { return "pipe" }

func (p *pipeRuntime) Open(context.Context) (jsonrpc.Stream, error) {
	host, ext := jsonrpc.Pipe()
	p.ext = ext
	return host, nil
}

func (p *pipeRuntime) Close() error { return nil }

func TestClient_ActivityAfterShutdownClosesSession(t *testing.T) {
	rt := &pipeRuntime{}
	c := startClient(t, rt, WithShutdownTimeout(200*time.Millisecond))

	var ext *jsonrpc.Conn
	ext = jsonrpc.NewConn(rt.ext, func(ctx context.Context, method string, _ json.RawMessage) (any, error) {
		switch method {
		case protocol.MethodInitialize:
			return protocol.InitializeResult{Capabilities: protocol.ServerCapabilities{HoverProvider: protocol.Enabled()}}, nil
		case protocol.MethodShutdown:
			_ = ext.Notify(ctx, protocol.MethodLogMessage, protocol.LogMessageParams{Type: protocol.MessageLog, Message: "late"})
			return nil, nil
		}
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ext.Start(ctx)
	defer ext.Close()

	_, err := c.Initialize(context.Background(), initParams())
	require.NoError(t, err)

	_ = c.Shutdown(context.Background())
	require.Eventually(t, func() bool { return c.Violations() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, lifecycle.StateExited, c.State())
}

func TestClient_InvalidParamsFromExtension(t *testing.T) {
	rt := &pipeRuntime{}
	c := startClient(t, rt)

	ext := jsonrpc.NewConn(rt.ext, func(ctx context.Context, method string, _ json.RawMessage) (any, error) {
		if method == protocol.MethodInitialize {
			return protocol.InitializeResult{}, nil
		}
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ext.Start(ctx)
	defer ext.Close()

	_, err := c.Initialize(context.Background(), initParams())
	require.NoError(t, err)

	err = ext.Call(ctx, protocol.MethodApplyEdit, map[string]any{"edit": "nope"}, nil)
	assert.ErrorIs(t, err, protocol.ErrInvalidParams)

	err = ext.Call(ctx, "window/unknown", nil, nil)
	assert.ErrorIs(t, err, protocol.ErrMethodNotFound)
}

func TestClient_WebSocketRuntime(t *testing.T) {
	srv := newGoServer(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = srv.Serve(r.Context(), jsonrpc.NewWebSocketStream(ws))
	}))
	defer ts.Close()

	c := startClient(t, &WebSocket{URL: "ws" + strings.TrimPrefix(ts.URL, "http")})
	neg, err := c.Initialize(context.Background(), initParams())
	require.NoError(t, err)
	assert.True(t, neg.Supports(protocol.FamilyHover))
	require.NoError(t, c.Shutdown(context.Background()))
}

func TestProcess_NoCommand(t *testing.T) {
	_, err := (&Process{}).Open(context.Background())
	assert.ErrorIs(t, err, ErrNoCommand)
	assert.NoError(t, (&Process{}).Close())
}
