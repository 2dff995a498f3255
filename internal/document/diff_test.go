package document

import (
	"testing"

	"github.com/dshills/exthost/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func applyAll(t require.TestingT, text string, changes []protocol.TextDocumentContentChangeEvent) string {
	for _, c := range changes {
		if c.IsFull() {
			text = c.Text
			continue
		}
		var err error
		text, err = protocol.ApplyEdit(text, *c.Range, c.Text)
		require.NoError(t, err)
	}
	return text
}

func TestIncrementalChanges_Examples(t *testing.T) {
	tests := []struct {
		name       string
		prev, next string
	}{
		{"insert", "ab", "aXb"},
		{"delete", "abc", "ac"},
		{"multiline", "one\ntwo\nthree\n", "one\n2\nthree\nfour\n"},
		{"astral", "a😀b", "a😀cb"},
		{"to empty", "abc", ""},
		{"from empty", "", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := incrementalChanges(tt.prev, tt.next)
			require.NotEmpty(t, changes)
			assert.Equal(t, tt.next, applyAll(t, tt.prev, changes))
		})
	}
	assert.Nil(t, incrementalChanges("same", "same"))
}

func TestIncrementalChanges_Replay(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prev := rapid.StringMatching(`[ab\n😀é]{0,30}`).Draw(t, "prev")
		next := rapid.StringMatching(`[ab\n😀é]{0,30}`).Draw(t, "next")
		changes := incrementalChanges(prev, next)
		require.Equal(t, next, applyAll(t, prev, changes))
	})
}

func TestAdvance(t *testing.T) {
	pos := advance(protocol.Position{Line: 1, Character: 2}, "a😀\nbc")
	assert.Equal(t, protocol.Position{Line: 2, Character: 2}, pos)
}
