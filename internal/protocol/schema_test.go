package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_OneDeclarationPerMethod(t *testing.T) {
	s := NewSchema()
	d := Declaration{Method: "x/y", Kind: KindNotification, Params: ptr[struct{}]()}
	require.NoError(t, s.Declare(d))
	assert.Error(t, s.Declare(d))
}

func TestSchema_RequestNeedsResult(t *testing.T) {
	s := NewSchema()
	assert.Error(t, s.Declare(Declaration{Method: "x", Kind: KindRequest, Params: ptr[struct{}]()}))
}

func TestSchema_DefaultCoversFamilies(t *testing.T) {
	s := Default()
	for _, f := range Families() {
		d, ok := s.Lookup(f.Method())
		require.True(t, ok, f.String())
		assert.Equal(t, f, d.Family)
		assert.Equal(t, KindRequest, d.Kind)
	}
}

func TestSchema_DecodeParams(t *testing.T) {
	s := Default()

	v, err := s.DecodeParams(MethodHover, json.RawMessage(`{"textDocument":{"uri":"file:///a.go"},"position":{"line":1,"character":2}}`))
	require.NoError(t, err)
	hp, ok := v.(*HoverParams)
	require.True(t, ok)
	assert.Equal(t, 2, hp.Position.Character)

	_, err = s.DecodeParams(MethodHover, json.RawMessage(`{"textDocument":{"uri":"file:///a.go"},"position":{"line":-1,"character":2}}`))
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = s.DecodeParams(MethodDidChange, json.RawMessage(`{"textDocument":{"uri":"file:///a.go","version":1}}`))
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = s.DecodeParams("nope/nope", nil)
	assert.ErrorIs(t, err, ErrMethodNotFound)
}

func TestSchema_Revisions(t *testing.T) {
	s := Default()
	assert.True(t, s.Available(MethodHover, Revision10))
	assert.False(t, s.Available(MethodPublishDecorations, Revision11))
	assert.True(t, s.Available(MethodPublishDecorations, CurrentRevision))

	assert.Equal(t, -1, CompareRevisions("1.2", "1.10"))
	assert.Equal(t, Revision10, MinRevision("", Revision12))
	assert.Equal(t, Revision11, MinRevision(Revision12, Revision11))
}
