package diagnostics

import (
	"sync"
	"testing"

	"github.com/dshills/exthost/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const uri = protocol.DocumentURI("file:///src/main.go")

func diag(line int, sev protocol.DiagnosticSeverity, msg string) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: line},
			End:   protocol.Position{Line: line, Character: 1},
		},
		Severity: sev,
		Message:  msg,
	}
}

func publish(t *testing.T, s *Store, source string, diags ...protocol.Diagnostic) {
	t.Helper()
	require.NoError(t, s.Publish(source, protocol.PublishDiagnosticsParams{URI: uri, Diagnostics: diags}))
}

func messages(diags []protocol.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Message
	}
	return out
}

func TestStore_PublishReplacesPerSource(t *testing.T) {
	s := NewStore()
	publish(t, s, "vet", diag(3, protocol.SeverityWarning, "shadow"))
	publish(t, s, "lint", diag(1, protocol.SeverityHint, "naming"))
	publish(t, s, "vet", diag(5, protocol.SeverityError, "unreachable"))

	assert.Equal(t, []string{"naming", "unreachable"}, messages(s.ForDocument(uri)))
	assert.Equal(t, []string{"lint", "vet"}, s.Sources(uri))

	set, ok := s.Get(uri, "vet")
	require.True(t, ok)
	assert.Equal(t, []string{"unreachable"}, messages(set.Diagnostics))
}

func TestStore_EmptyPublishRemoves(t *testing.T) {
	s := NewStore()
	publish(t, s, "vet", diag(3, protocol.SeverityWarning, "shadow"))
	publish(t, s, "vet")

	_, ok := s.Get(uri, "vet")
	assert.False(t, ok)
	assert.Empty(t, s.Documents())
}

func TestStore_SortsByPosition(t *testing.T) {
	s := NewStore()
	publish(t, s, "vet", diag(9, 1, "c"), diag(2, 1, "a"), diag(4, 1, "b"))
	assert.Equal(t, []string{"a", "b", "c"}, messages(s.ForDocument(uri)))
}

func TestStore_RejectsInvalidRange(t *testing.T) {
	s := NewStore()
	bad := protocol.Diagnostic{
		Range: protocol.Range{Start: protocol.Position{Line: 4}, End: protocol.Position{Line: 1}},
	}
	err := s.Publish("vet", protocol.PublishDiagnosticsParams{URI: uri, Diagnostics: []protocol.Diagnostic{bad}})
	assert.ErrorIs(t, err, protocol.ErrInvalidParams)
	assert.Empty(t, s.Documents())
}

func TestStore_RejectsUnknownSeverity(t *testing.T) {
	s := NewStore()
	err := s.Publish("vet", protocol.PublishDiagnosticsParams{URI: uri, Diagnostics: []protocol.Diagnostic{diag(0, 7, "x")}})
	assert.ErrorIs(t, err, protocol.ErrInvalidParams)
}

func TestStore_MinSeverityAndCap(t *testing.T) {
	s := NewStore(WithMinSeverity(protocol.SeverityWarning), WithMaxPerSource(2))
	publish(t, s, "vet",
		diag(1, protocol.SeverityHint, "hint"),
		diag(2, protocol.SeverityError, "e1"),
		diag(3, 0, "unset"),
		diag(4, protocol.SeverityWarning, "w1"),
	)
	assert.Equal(t, []string{"e1", "unset"}, messages(s.ForDocument(uri)))
}

func TestStore_Count(t *testing.T) {
	s := NewStore()
	publish(t, s, "a", diag(1, protocol.SeverityError, "e"), diag(2, protocol.SeverityWarning, "w"))
	publish(t, s, "b", diag(3, protocol.SeverityError, "e2"), diag(4, 0, "u"))

	c := s.Count(uri)
	assert.Equal(t, Counts{Errors: 2, Warnings: 1, Unclassified: 1}, c)
	assert.Equal(t, 4, c.Total())
}

func TestStore_RemoveSourceNotifies(t *testing.T) {
	var mu sync.Mutex
	var changes []Change
	s := NewStore(WithChangeHandler(func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	}))
	publish(t, s, "ext", diag(1, 1, "x"))
	publish(t, s, "other", diag(1, 1, "y"))
	s.RemoveSource("ext")

	assert.Equal(t, []string{"other"}, s.Sources(uri))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changes, 3)
	assert.Equal(t, "ext", changes[2].Source)
	assert.Empty(t, changes[2].Diagnostics)
}

func TestStore_LastPublishWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore()
		n := rapid.IntRange(1, 20).Draw(t, "publishes")
		var last []protocol.Diagnostic
		for i := 0; i < n; i++ {
			count := rapid.IntRange(0, 5).Draw(t, "count")
			diags := make([]protocol.Diagnostic, count)
			for j := range diags {
				diags[j] = diag(j, protocol.SeverityError, rapid.StringMatching(`[a-z]{1,6}`).Draw(t, "msg"))
			}
			if err := s.Publish("src", protocol.PublishDiagnosticsParams{URI: uri, Diagnostics: diags}); err != nil {
				t.Fatalf("publish: %v", err)
			}
			last = diags
		}
		got := s.ForDocument(uri)
		if len(got) != len(last) {
			t.Fatalf("got %d diagnostics, want %d", len(got), len(last))
		}
		for i := range got {
			if got[i].Message != last[i].Message {
				t.Fatalf("diagnostic %d: got %q, want %q", i, got[i].Message, last[i].Message)
			}
		}
	})
}

func TestDecorations_PublishAndRemove(t *testing.T) {
	var changed []string
	d := NewDecorations(func(u protocol.DocumentURI, source string) {
		changed = append(changed, source)
	})
	dec := protocol.TextDocumentDecoration{
		Range:           protocol.Range{End: protocol.Position{Character: 3}},
		BackgroundColor: "#ff0000",
	}
	require.NoError(t, d.Publish("b", protocol.TextDocumentPublishDecorationsParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Decorations:  []protocol.TextDocumentDecoration{dec},
	}))
	require.NoError(t, d.Publish("a", protocol.TextDocumentPublishDecorationsParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Decorations:  []protocol.TextDocumentDecoration{dec, dec},
	}))

	got := d.ForDocument(uri)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Source)
	assert.Len(t, got[0].Decorations, 2)

	require.NoError(t, d.Publish("a", protocol.TextDocumentPublishDecorationsParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}))
	d.RemoveSource("b")
	assert.Empty(t, d.ForDocument(uri))
	assert.Equal(t, []string{"b", "a", "a", "b"}, changed)
}

func TestDecorations_RejectsInvalidRange(t *testing.T) {
	d := NewDecorations(nil)
	err := d.Publish("a", protocol.TextDocumentPublishDecorationsParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Decorations: []protocol.TextDocumentDecoration{{
			Range: protocol.Range{Start: protocol.Position{Line: 2}},
		}},
	})
	assert.ErrorIs(t, err, protocol.ErrInvalidParams)
}
