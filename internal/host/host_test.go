package host

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dshills/exthost/internal/contribution"
	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/lifecycle"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/registry"
	"github.com/dshills/exthost/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const goURI = protocol.DocumentURI("file:///work/main.go")

// gopher is an in-process extension that records what the host sends it.
type gopher struct {
	srv *server.Server

	mu       sync.Mutex
	settings []json.RawMessage
	folders  []protocol.WorkspaceFoldersChangeEvent
	files    []protocol.FileEvent
}

func newGopher(t *testing.T) *gopher {
	t.Helper()
	g := &gopher{srv: server.New(protocol.Info{Name: "gopher", Version: "1.0.0"}, server.WithLogger(zaptest.NewLogger(t).Named("gopher")))}
	srv := g.srv

	srv.OnHover(func(_ context.Context, p protocol.HoverParams) (*protocol.Hover, error) {
		doc, ok := srv.Document(p.TextDocument.URI)
		if !ok {
			return nil, nil
		}
		return &protocol.Hover{Contents: protocol.MarkupContent{Kind: protocol.MarkupKindPlainText, Value: doc.Text}}, nil
	})
	srv.OnReferences(func(ctx context.Context, _ protocol.ReferenceParams) ([]protocol.Location, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	srv.OnDidChangeConfiguration(func(_ context.Context, p protocol.DidChangeConfigurationParams) error {
		g.mu.Lock()
		g.settings = append(g.settings, p.Settings)
		g.mu.Unlock()
		return nil
	})
	srv.OnDidChangeWorkspaceFolders(func(_ context.Context, p protocol.DidChangeWorkspaceFoldersParams) error {
		g.mu.Lock()
		g.folders = append(g.folders, p.Event)
		g.mu.Unlock()
		return nil
	})
	srv.OnDidChangeWatchedFiles(func(_ context.Context, p protocol.DidChangeWatchedFilesParams) error {
		g.mu.Lock()
		g.files = append(g.files, p.Changes...)
		g.mu.Unlock()
		return nil
	})

	srv.Command("gopher.sum", func(_ context.Context, args []any) (any, error) {
		total := 0.0
		for _, a := range args {
			f, _ := a.(float64)
			total += f
		}
		return total, nil
	})
	srv.Command("gopher.lint", func(ctx context.Context, _ []any) (any, error) {
		return nil, srv.Client().PublishDiagnostics(ctx, protocol.PublishDiagnosticsParams{
			URI: goURI,
			Diagnostics: []protocol.Diagnostic{{
				Range:    protocol.Range{End: protocol.Position{Character: 7}},
				Severity: protocol.SeverityWarning,
				Message:  "package comment missing",
			}},
		})
	})
	srv.Command("gopher.configure", func(ctx context.Context, _ []any) (any, error) {
		c := srv.Client()
		if err := c.UpdateConfiguration(ctx, []any{"gopher", "format", "tabWidth"}, 8); err != nil {
			return nil, err
		}
		vals, err := c.Configuration(ctx, protocol.ConfigurationItem{Section: "gopher.format"}, protocol.ConfigurationItem{Section: "missing"})
		if err != nil {
			return nil, err
		}
		return []any{string(vals[0]), string(vals[1])}, nil
	})
	srv.Command("gopher.rename", func(ctx context.Context, _ []any) (any, error) {
		return srv.Client().ApplyEdit(ctx, protocol.ApplyWorkspaceEditParams{
			Label: "rename",
			Edit: protocol.WorkspaceEdit{Changes: map[protocol.DocumentURI][]protocol.TextEdit{
				goURI: {{Range: protocol.Range{Start: protocol.Position{Character: 8}, End: protocol.Position{Character: 12}}, NewText: "gopher"}},
			}},
		})
	})
	srv.Command("gopher.unhover", func(ctx context.Context, _ []any) (any, error) {
		return nil, srv.Client().Unregister(ctx, protocol.Unregistration{
			ID:     registry.StaticID("gopher", protocol.FamilyHover),
			Method: protocol.MethodHover,
		})
	})
	return g
}

func newHost(t *testing.T, opts ...Option) *Host {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithWatchDelay(20 * time.Millisecond)}, opts...)
	h, err := New(json.RawMessage(`{"gopher":{"format":{"tabWidth":4}}}`), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close(context.Background()) })
	return h
}

func startGopher(t *testing.T, h *Host, def Extension) *gopher {
	t.Helper()
	g := newGopher(t)
	def.ID = "gopher"
	def.Runtime = extension.NewInProcess(g.srv)
	require.NoError(t, h.Add(context.Background(), def))
	require.NoError(t, h.Start(context.Background()))
	return g
}

func openGo(t *testing.T, h *Host, text string) {
	t.Helper()
	_, err := h.OpenDocument(context.Background(), protocol.TextDocumentItem{URI: goURI, LanguageID: "go", Version: 1, Text: text})
	require.NoError(t, err)
	require.NoError(t, h.Flush(context.Background()))
}

func hover(t *testing.T, h *Host, uri protocol.DocumentURI) *protocol.Hover {
	t.Helper()
	v, err := h.Request(context.Background(), protocol.MethodHover, protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{TextDocument: protocol.TextDocumentIdentifier{URI: uri}},
	})
	require.NoError(t, err)
	hv, _ := v.(*protocol.Hover)
	return hv
}

func TestHost_StartAndRoute(t *testing.T) {
	h := newHost(t)
	startGopher(t, h, Extension{})

	st := h.Extensions()
	require.Len(t, st, 1)
	assert.True(t, st[0].Active)
	assert.Equal(t, lifecycle.StateReady, st[0].State)
	assert.Equal(t, "inprocess", st[0].Runtime)
	assert.Contains(t, st[0].Families, protocol.FamilyHover)
	require.NotNil(t, st[0].Server)
	assert.Equal(t, "gopher", st[0].Server.Name)

	// Hover on an unopened document is empty.
	assert.Nil(t, hover(t, h, goURI))

	openGo(t, h, "package main")
	hv := hover(t, h, goURI)
	require.NotNil(t, hv)
	assert.Equal(t, "package main", hv.Contents.Value)
}

func TestHost_SelectorScopesRouting(t *testing.T) {
	h := newHost(t)
	startGopher(t, h, Extension{Selector: protocol.DocumentSelector{{Language: "go", Pattern: "**/*.go"}}})

	openGo(t, h, "package main")
	pyURI := protocol.DocumentURI("file:///work/main.py")
	_, err := h.OpenDocument(context.Background(), protocol.TextDocumentItem{URI: pyURI, LanguageID: "python", Version: 1, Text: "print()"})
	require.NoError(t, err)
	require.NoError(t, h.Flush(context.Background()))

	require.NotNil(t, hover(t, h, goURI))
	assert.Nil(t, hover(t, h, pyURI))
}

func TestHost_LazyActivation(t *testing.T) {
	h := newHost(t)
	startGopher(t, h, Extension{Languages: []string{"go"}})
	assert.False(t, h.Extensions()[0].Active)

	openGo(t, h, "package lazy")
	assert.True(t, h.Extensions()[0].Active)

	// The document opened before activation was replayed.
	require.Eventually(t, func() bool {
		hv := hover(t, h, goURI)
		return hv != nil && hv.Contents.Value == "package lazy"
	}, time.Second, 10*time.Millisecond)
}

func TestHost_Commands(t *testing.T) {
	h := newHost(t)
	startGopher(t, h, Extension{})
	require.NoError(t, h.RegisterCommand("host.echo", func(_ context.Context, args []any) (any, error) {
		return args, nil
	}))
	assert.Contains(t, h.Commands(), "gopher.sum")
	assert.Contains(t, h.Commands(), "host.echo")

	v, err := h.ExecuteCommand(context.Background(), protocol.ExecuteCommandParams{Command: "gopher.sum", Arguments: []any{1, 2, 3}})
	require.NoError(t, err)
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `6`, string(raw))

	v, err = h.ExecuteCommand(context.Background(), protocol.ExecuteCommandParams{Command: "host.echo", Arguments: []any{"x"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, v)

	_, err = h.ExecuteCommand(context.Background(), protocol.ExecuteCommandParams{Command: "nope"})
	assert.ErrorIs(t, err, protocol.ErrCommandNotFound)

	// A command cannot be claimed twice.
	assert.Error(t, h.RegisterCommand("gopher.sum", func(context.Context, []any) (any, error) { return nil, nil }))
}

func TestHost_Services(t *testing.T) {
	h := newHost(t)
	g := startGopher(t, h, Extension{})
	openGo(t, h, "package main")
	ctx := context.Background()

	_, err := h.ExecuteCommand(ctx, protocol.ExecuteCommandParams{Command: "gopher.lint"})
	require.NoError(t, err)
	diags := h.Diagnostics().ForDocument(goURI)
	require.Len(t, diags, 1)
	assert.Equal(t, "package comment missing", diags[0].Message)
	assert.Equal(t, []string{"gopher"}, h.Diagnostics().Sources(goURI))

	v, err := h.ExecuteCommand(ctx, protocol.ExecuteCommandParams{Command: "gopher.configure"})
	require.NoError(t, err)
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `["{\"tabWidth\":8}","null"]`, string(raw))
	assert.JSONEq(t, `{"tabWidth":8}`, string(h.Settings().Section("gopher.format")))
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.settings) == 1
	}, time.Second, 5*time.Millisecond)

	v, err = h.ExecuteCommand(ctx, protocol.ExecuteCommandParams{Command: "gopher.rename"})
	require.NoError(t, err)
	raw, err = json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"applied":true}`, string(raw))
	snap, ok := h.Documents().Snapshot(goURI)
	require.True(t, ok)
	assert.Equal(t, "package gopher", snap.Text)
	assert.Equal(t, int32(2), snap.Version)

	// The extension's mirror follows the edit.
	require.NoError(t, h.Flush(ctx))
	require.Eventually(t, func() bool {
		doc, ok := g.srv.Document(goURI)
		return ok && doc.Text == "package gopher"
	}, time.Second, 5*time.Millisecond)
}

func TestHost_UnregisterRemovesRouting(t *testing.T) {
	h := newHost(t)
	startGopher(t, h, Extension{})
	openGo(t, h, "package main")
	require.NotNil(t, hover(t, h, goURI))

	_, err := h.ExecuteCommand(context.Background(), protocol.ExecuteCommandParams{Command: "gopher.unhover"})
	require.NoError(t, err)
	assert.Nil(t, hover(t, h, goURI))
}

func TestHost_CancelPendingRequest(t *testing.T) {
	h := newHost(t)
	startGopher(t, h, Extension{})
	openGo(t, h, "package main")

	id, err := h.Submit(context.Background(), protocol.MethodReferences, protocol.ReferenceParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{TextDocument: protocol.TextDocumentIdentifier{URI: goURI}},
	})
	require.NoError(t, err)

	res, err := h.Result(id)
	require.NoError(t, err)
	assert.True(t, res.IsPending())
	require.Len(t, h.InFlight(), 1)

	require.NoError(t, h.Cancel(id))
	_, err = h.Wait(context.Background(), id)
	assert.ErrorIs(t, err, protocol.ErrRequestCancelled)
	assert.Empty(t, h.InFlight())

	_, err = h.Result(id)
	assert.ErrorIs(t, err, ErrUnknownRequest)
	assert.ErrorIs(t, h.Cancel("missing"), ErrUnknownRequest)

	_, err = h.Submit(context.Background(), "textDocument/unknown", nil)
	assert.ErrorIs(t, err, protocol.ErrMethodNotFound)
}

func TestHost_WorkspaceFolders(t *testing.T) {
	h := newHost(t, WithWorkspaceFolders(protocol.WorkspaceFolder{URI: "file:///work", Name: "work"}))
	g := startGopher(t, h, Extension{})
	assert.Equal(t, protocol.DocumentURI("file:///work"), g.srv.InitializeParams().RootURI)

	added := protocol.WorkspaceFolder{URI: "file:///lib", Name: "lib"}
	require.NoError(t, h.ChangeWorkspaceFolders(context.Background(), []protocol.WorkspaceFolder{added}, nil))
	assert.Len(t, h.WorkspaceFolders(), 2)

	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.folders) == 1 && len(g.folders[0].Added) == 1 && g.folders[0].Added[0] == added
	}, time.Second, 5*time.Millisecond)
}

func TestHost_WatchedFiles(t *testing.T) {
	dir := t.TempDir()
	h := newHost(t, WithWorkspaceFolders(protocol.WorkspaceFolder{URI: protocol.FilePathToURI(dir), Name: "tmp"}))
	g := startGopher(t, h, Extension{})
	require.NoError(t, h.Watch("**/*.go"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.go"), []byte("package x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.files) > 0
	}, 3*time.Second, 10*time.Millisecond)
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, f := range g.files {
		assert.Equal(t, ".go", filepath.Ext(protocol.URIToFilePath(f.URI)))
	}
}

func TestHost_CrashReleasesState(t *testing.T) {
	h := newHost(t)
	g := newGopher(t)
	rt := extension.NewInProcess(g.srv)
	require.NoError(t, h.Add(context.Background(), Extension{ID: "gopher", Runtime: rt}))
	require.NoError(t, h.Start(context.Background()))
	openGo(t, h, "package main")
	_, err := h.ExecuteCommand(context.Background(), protocol.ExecuteCommandParams{Command: "gopher.lint"})
	require.NoError(t, err)
	require.NotZero(t, h.Registry().Len())

	require.NoError(t, rt.Close())
	require.Eventually(t, func() bool {
		return !h.Extensions()[0].Active
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.Registry().Owned("gopher"))
	assert.Empty(t, h.Diagnostics().ForDocument(goURI))
	assert.Nil(t, hover(t, h, goURI))
}

func TestHost_CloseTearsDown(t *testing.T) {
	h := newHost(t)
	g := startGopher(t, h, Extension{})
	openGo(t, h, "package main")
	_, err := h.ExecuteCommand(context.Background(), protocol.ExecuteCommandParams{Command: "gopher.lint"})
	require.NoError(t, err)

	require.NoError(t, h.Close(context.Background()))
	assert.Equal(t, 0, g.srv.ExitCode())
	assert.Zero(t, h.Registry().Len())
	assert.Zero(t, h.Documents().Len())
	assert.Empty(t, h.Diagnostics().Documents())
	assert.False(t, h.Extensions()[0].Active)

	_, err = h.OpenDocument(context.Background(), protocol.TextDocumentItem{URI: goURI, LanguageID: "go", Version: 1})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, h.Start(context.Background()), ErrClosed)
	assert.NoError(t, h.Close(context.Background()))
}

func TestHost_AddValidation(t *testing.T) {
	h := newHost(t)
	assert.Error(t, h.Add(context.Background(), Extension{ID: "x"}))
	require.NoError(t, h.Add(context.Background(), Extension{ID: "x", Runtime: extension.NewInProcess(newGopher(t).srv)}))
	assert.ErrorIs(t, h.Add(context.Background(), Extension{ID: "x", Runtime: extension.NewInProcess(newGopher(t).srv)}), ErrDuplicateExtension)
	assert.ErrorIs(t, h.Activate(context.Background(), "y"), ErrUnknownExtension)
}

func TestHost_Contributions(t *testing.T) {
	h := newHost(t)
	require.NoError(t, h.Add(context.Background(), Extension{
		ID:      "gopher",
		Runtime: extension.NewInProcess(newGopher(t).srv),
		Contributions: protocol.Contributions{
			Actions: []protocol.ActionContribution{{ID: "organize", Command: "gopher.organize", Title: "Organize"}},
			Menus: map[protocol.MenuID][]protocol.MenuItem{
				protocol.MenuEditorContext: {{Action: "organize", When: "resource.language == go"}},
			},
		},
	}))

	res := h.Contributions(contribution.Context{"resource": map[string]any{"language": "go"}})
	require.Len(t, res.Visible(protocol.MenuEditorContext), 1)

	res = h.Contributions(contribution.Context{"resource": map[string]any{"language": "python"}})
	assert.Empty(t, res.Visible(protocol.MenuEditorContext))
}

type recordingUI struct {
	LogUI
	choice string
}

func (u recordingUI) ShowMessageRequest(context.Context, string, protocol.ShowMessageRequestParams) (*protocol.MessageActionItem, error) {
	return &protocol.MessageActionItem{Title: u.choice}, nil
}

func TestServices_MessageRequestChoiceMustBeOffered(t *testing.T) {
	h := newHost(t, WithUI(recordingUI{choice: "Maybe"}))
	s := &services{h: h}
	_, err := s.ShowMessageRequest(context.Background(), "gopher", protocol.ShowMessageRequestParams{
		Message: "Reload?", Actions: []protocol.MessageActionItem{{Title: "Yes"}, {Title: "No"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrInternal))

	h2 := newHost(t, WithUI(recordingUI{choice: "Yes"}))
	got, err := (&services{h: h2}).ShowMessageRequest(context.Background(), "gopher", protocol.ShowMessageRequestParams{
		Message: "Reload?", Actions: []protocol.MessageActionItem{{Title: "Yes"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Yes", got.Title)
}
