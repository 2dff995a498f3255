package lifecycle

import (
	"encoding/json"
	"testing"

	"github.com/dshills/exthost/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiate_HoverOnly(t *testing.T) {
	var result protocol.InitializeResult
	require.NoError(t, json.Unmarshal([]byte(`{"capabilities": {"hoverProvider": true}}`), &result))

	n := Negotiate(protocol.InitializeParams{ProtocolVersion: protocol.CurrentRevision}, result)
	assert.True(t, n.Supports(protocol.FamilyHover))
	assert.False(t, n.Supports(protocol.FamilyCompletion))
	assert.Equal(t, []protocol.Family{protocol.FamilyHover}, n.Families())
	assert.Equal(t, protocol.SyncNone, n.SyncKind)
	assert.False(t, n.WantsDocuments())
	assert.Equal(t, protocol.Revision10, n.Revision)

	out, err := json.Marshal(result.Capabilities)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hoverProvider": true}`, string(out))
}

func TestNegotiate_SyncKindAndRevision(t *testing.T) {
	caps := protocol.ServerCapabilities{
		TextDocumentSync:   &protocol.TextDocumentSyncOptions{OpenClose: true, Change: protocol.SyncIncremental},
		CompletionProvider: protocol.WithOptions(protocol.CompletionOptions{TriggerCharacters: []string{"."}}),
	}
	n := Negotiate(
		protocol.InitializeParams{ProtocolVersion: protocol.Revision12},
		protocol.InitializeResult{Capabilities: caps, ProtocolVersion: protocol.Revision11, ServerInfo: &protocol.Info{Name: "go"}},
	)

	assert.Equal(t, protocol.SyncIncremental, n.SyncKind)
	assert.True(t, n.OpenClose)
	assert.True(t, n.WantsDocuments())
	assert.Equal(t, protocol.Revision11, n.Revision)
	assert.Equal(t, "go", n.ServerName())
	assert.True(t, n.Understands(protocol.MethodCodeAction))
	assert.False(t, n.Understands(protocol.MethodPublishDecorations))

	var opts protocol.CompletionOptions
	require.NoError(t, n.Capabilities.Capability(protocol.FamilyCompletion).Options(&opts))
	assert.Equal(t, []string{"."}, opts.TriggerCharacters)
}

func TestNegotiate_ZeroValue(t *testing.T) {
	var n Negotiated
	assert.False(t, n.Supports(protocol.FamilyHover))
	assert.Empty(t, n.Families())
	assert.Empty(t, n.ServerName())
}
