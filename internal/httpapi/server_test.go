package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/host"
	"github.com/dshills/exthost/internal/jsonrpc"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/server"
	"github.com/dshills/exthost/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newExtension(t *testing.T, name string) *server.Server {
	t.Helper()
	srv := server.New(protocol.Info{Name: name}, server.WithLogger(zaptest.NewLogger(t).Named(name)))
	srv.OnHover(func(context.Context, protocol.HoverParams) (*protocol.Hover, error) {
		return &protocol.Hover{Contents: protocol.MarkupContent{Kind: protocol.MarkupKindPlainText, Value: name}}, nil
	})
	return srv
}

func setup(t *testing.T) (*host.Host, *httptest.Server) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	metrics := telemetry.NewMetrics()
	h, err := host.New(json.RawMessage(`{"gopher":{"tabWidth":4}}`), host.WithLogger(logger), host.WithMetrics(metrics))
	require.NoError(t, err)
	require.NoError(t, h.Add(context.Background(), host.Extension{ID: "gopher", Runtime: extension.NewInProcess(newExtension(t, "gopher"))}))
	require.NoError(t, h.Start(context.Background()))

	ts := httptest.NewServer(New(h, WithLogger(logger), WithMetrics(metrics.Handler())))
	t.Cleanup(func() {
		h.Close(context.Background())
		ts.Close()
	})
	return h, ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func do(t *testing.T, method, url string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_Health(t *testing.T) {
	h, ts := setup(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, h.ID(), body["host"])
}

func TestServer_Extensions(t *testing.T) {
	_, ts := setup(t)

	var exts []extensionView
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/debug/extensions", &exts))
	require.Len(t, exts, 1)
	assert.Equal(t, "gopher", exts[0].ID)
	assert.True(t, exts[0].Active)
	assert.Equal(t, "ready", exts[0].State)
	assert.Contains(t, exts[0].Families, protocol.FamilyHover)

	resp := do(t, http.MethodPost, ts.URL+"/debug/extensions/gopher/deactivate", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/debug/extensions", &exts))
	assert.False(t, exts[0].Active)

	resp = do(t, http.MethodPost, ts.URL+"/debug/extensions/missing/activate", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var regs []registrationView
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/debug/registrations", &regs))
	assert.Empty(t, regs)
}

func TestServer_DocumentsAndDiagnostics(t *testing.T) {
	h, ts := setup(t)
	uri := protocol.DocumentURI("file:///w/main.go")
	_, err := h.OpenDocument(context.Background(), protocol.TextDocumentItem{URI: uri, LanguageID: "go", Version: 1, Text: "package main"})
	require.NoError(t, err)
	require.NoError(t, h.Diagnostics().Publish("gopher", protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{{Message: "unused import", Severity: protocol.SeverityWarning}},
	}))

	var docs []documentView
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/debug/documents", &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, uri, docs[0].URI)
	assert.Equal(t, len("package main"), docs[0].Length)

	var all []diagnosticsView
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/debug/diagnostics", &all))
	require.Len(t, all, 1)
	assert.Equal(t, []string{"gopher"}, all[0].Sources)

	var one diagnosticsView
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/debug/diagnostics?uri="+string(uri), &one))
	require.Len(t, one.Diagnostics, 1)
	assert.Equal(t, "unused import", one.Diagnostics[0].Message)

	var regs []registrationView
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/debug/registrations?owner=gopher", &regs))
	require.NotEmpty(t, regs)
	assert.True(t, regs[0].Static)
}

func TestServer_Settings(t *testing.T) {
	_, ts := setup(t)

	resp := do(t, http.MethodGet, ts.URL+"/debug/settings?section=gopher", nil)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tabWidth":4}`, string(body))

	resp = do(t, http.MethodPut, ts.URL+"/debug/settings", []byte(`{"gopher":{"tabWidth":2}}`))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodGet, ts.URL+"/debug/settings", nil)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"gopher":{"tabWidth":2}}`, string(body))

	resp = do(t, http.MethodPut, ts.URL+"/debug/settings", []byte(`[1,2]`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Requests(t *testing.T) {
	_, ts := setup(t)
	var reqs []requestView
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/debug/requests", &reqs))
	assert.Empty(t, reqs)

	resp := do(t, http.MethodDelete, ts.URL+"/debug/requests/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	h, ts := setup(t)
	_, err := h.OpenDocument(context.Background(), protocol.TextDocumentItem{URI: "file:///w/a.go", LanguageID: "go", Version: 1})
	require.NoError(t, err)

	resp := do(t, http.MethodGet, ts.URL+"/metrics", nil)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `exthost_document_events_total{kind="open"} 1`)
}

func TestServer_AttachWebSocket(t *testing.T) {
	h, ts := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?id=remote&languages=go"
	stream, err := jsonrpc.DialWebSocket(ctx, wsURL)
	require.NoError(t, err)
	ext := newExtension(t, "remote")
	served := make(chan error, 1)
	go func() { served <- ext.Serve(ctx, stream) }()

	require.Eventually(t, func() bool {
		for _, st := range h.Extensions() {
			if st.ID == "remote" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	// The extension activates with the first Go document.
	uri := protocol.DocumentURI("file:///w/main.go")
	_, err = h.OpenDocument(ctx, protocol.TextDocumentItem{URI: uri, LanguageID: "go", Version: 1, Text: "package main"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		for _, st := range h.Extensions() {
			if st.ID == "remote" && st.Active {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	// Disconnecting removes the extension.
	cancel()
	<-served
	require.Eventually(t, func() bool {
		return len(h.Extensions()) == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestServer_AttachRequiresID(t *testing.T) {
	_, ts := setup(t)
	resp := do(t, http.MethodGet, ts.URL+"/ws", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
