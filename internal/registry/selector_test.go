package registry

import (
	"testing"

	"github.com/dshills/exthost/internal/protocol"
	"github.com/stretchr/testify/assert"
)

func TestMatchFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter protocol.DocumentFilter
		doc    Document
		want   bool
	}{
		{"empty filter", protocol.DocumentFilter{}, mainGo, true},
		{"language", protocol.DocumentFilter{Language: "go"}, mainGo, true},
		{"other language", protocol.DocumentFilter{Language: "go"}, mainPy, false},
		{"wildcard language", protocol.DocumentFilter{Language: "*"}, mainPy, true},
		{"scheme", protocol.DocumentFilter{Scheme: "file"}, mainGo, true},
		{"other scheme", protocol.DocumentFilter{Scheme: "untitled"}, mainGo, false},
		{"deep glob", protocol.DocumentFilter{Pattern: "**/*.go"}, mainGo, true},
		{"deep glob miss", protocol.DocumentFilter{Pattern: "**/*.go"}, mainPy, false},
		{"basename glob", protocol.DocumentFilter{Pattern: "*.py"}, mainPy, true},
		{"absolute glob", protocol.DocumentFilter{Pattern: "/work/cmd/*.go"}, mainGo, true},
		{"relative dir glob", protocol.DocumentFilter{Pattern: "work/*.go"}, mainGo, false},
		{"brace glob", protocol.DocumentFilter{Pattern: "**/*.{go,mod}"}, mainGo, true},
		{"language and pattern", protocol.DocumentFilter{Language: "python", Pattern: "**/*.go"}, mainGo, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchFilter(tt.filter, tt.doc))
		})
	}
}

func TestMatchSelector(t *testing.T) {
	assert.True(t, MatchSelector(nil, mainPy))
	sel := protocol.DocumentSelector{{Language: "go"}, {Language: "python"}}
	assert.True(t, MatchSelector(sel, mainGo))
	assert.True(t, MatchSelector(sel, mainPy))
	assert.False(t, MatchSelector(sel, Document{URI: "file:///a.rs", LanguageID: "rust"}))
}
