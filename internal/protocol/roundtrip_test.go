package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func genPosition() *rapid.Generator[Position] {
	return rapid.Custom(func(t *rapid.T) Position {
		return Position{
			Line:      rapid.IntRange(0, 10000).Draw(t, "line"),
			Character: rapid.IntRange(0, 500).Draw(t, "character"),
		}
	})
}

func genRange() *rapid.Generator[Range] {
	return rapid.Custom(func(t *rapid.T) Range {
		a, b := genPosition().Draw(t, "a"), genPosition().Draw(t, "b")
		if b.Before(a) {
			a, b = b, a
		}
		return Range{Start: a, End: b}
	})
}

func genURI() *rapid.Generator[DocumentURI] {
	return rapid.Custom(func(t *rapid.T) DocumentURI {
		name := rapid.StringMatching(`[a-z]{1,8}\.(go|py|ts)`).Draw(t, "name")
		return DocumentURI("file:///src/" + name)
	})
}

func genDiagnostic() *rapid.Generator[Diagnostic] {
	return rapid.Custom(func(t *rapid.T) Diagnostic {
		d := Diagnostic{
			Range:    genRange().Draw(t, "range"),
			Severity: DiagnosticSeverity(rapid.IntRange(1, 4).Draw(t, "severity")),
			Source:   rapid.String().Draw(t, "source"),
			Message:  rapid.String().Draw(t, "message"),
		}
		if rapid.Bool().Draw(t, "hasCode") {
			d.Code = rapid.String().Draw(t, "code")
		}
		if rapid.Bool().Draw(t, "tagged") {
			d.Tags = []DiagnosticTag{DiagnosticTagDeprecated}
		}
		return d
	})
}

func genCompletionItem() *rapid.Generator[CompletionItem] {
	return rapid.Custom(func(t *rapid.T) CompletionItem {
		item := CompletionItem{
			Label:      rapid.StringN(1, 12, -1).Draw(t, "label"),
			Kind:       CompletionItemKind(rapid.IntRange(0, 25).Draw(t, "kind")),
			Detail:     rapid.String().Draw(t, "detail"),
			InsertText: rapid.String().Draw(t, "insertText"),
		}
		if rapid.Bool().Draw(t, "hasEdit") {
			item.TextEdit = &TextEdit{Range: genRange().Draw(t, "editRange"), NewText: rapid.String().Draw(t, "newText")}
		}
		if rapid.Bool().Draw(t, "hasDoc") {
			item.Documentation = &MarkupContent{Kind: MarkupKindMarkdown, Value: rapid.String().Draw(t, "doc")}
		}
		return item
	})
}

func genCapability() *rapid.Generator[Capability] {
	return rapid.Custom(func(t *rapid.T) Capability {
		switch rapid.IntRange(0, 2).Draw(t, "kind") {
		case 0:
			return Unsupported()
		case 1:
			return Enabled()
		default:
			chars := rapid.SliceOfN(rapid.StringMatching(`[.:(<]`), 1, 3).Draw(t, "triggers")
			return WithOptions(CompletionOptions{TriggerCharacters: chars})
		}
	})
}

func genServerCapabilities() *rapid.Generator[ServerCapabilities] {
	return rapid.Custom(func(t *rapid.T) ServerCapabilities {
		var caps ServerCapabilities
		for _, f := range Families() {
			caps.SetCapability(f, genCapability().Draw(t, f.String()))
		}
		if rapid.Bool().Draw(t, "sync") {
			caps.TextDocumentSync = &TextDocumentSyncOptions{
				OpenClose: true,
				Change:    TextDocumentSyncKind(rapid.IntRange(0, 2).Draw(t, "change")),
			}
		}
		return caps
	})
}

// assertStableJSON checks that decoding and re-encoding v loses nothing.
func assertStableJSON[T any](t *rapid.T, v T) {
	first, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded T
	if err := json.Unmarshal(first, &decoded); err != nil {
		t.Fatalf("unmarshal %s: %v", first, err)
	}
	second, err := json.Marshal(decoded)
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("round trip changed encoding:\n%s\n%s", first, second)
	}
}

func TestRoundTrip_Catalog(t *testing.T) {
	t.Run("TextDocumentItem", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			assertStableJSON(t, TextDocumentItem{
				URI:        genURI().Draw(t, "uri"),
				LanguageID: rapid.SampledFrom([]string{"go", "python"}).Draw(t, "lang"),
				Version:    rapid.Int32Range(0, 1<<30).Draw(t, "version"),
				Text:       rapid.String().Draw(t, "text"),
			})
		})
	})
	t.Run("DidChangeTextDocumentParams", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			rng := genRange().Draw(t, "range")
			assertStableJSON(t, DidChangeTextDocumentParams{
				TextDocument: VersionedTextDocumentIdentifier{URI: genURI().Draw(t, "uri"), Version: rapid.Int32Min(0).Draw(t, "v")},
				ContentChanges: []TextDocumentContentChangeEvent{
					{Range: &rng, Text: rapid.String().Draw(t, "edit")},
					{Text: rapid.String().Draw(t, "full")},
				},
			})
		})
	})
	t.Run("PublishDiagnosticsParams", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			assertStableJSON(t, PublishDiagnosticsParams{
				URI:         genURI().Draw(t, "uri"),
				Diagnostics: rapid.SliceOf(genDiagnostic()).Draw(t, "diags"),
			})
		})
	})
	t.Run("CompletionList", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			assertStableJSON(t, CompletionList{
				IsIncomplete: rapid.Bool().Draw(t, "incomplete"),
				Items:        rapid.SliceOf(genCompletionItem()).Draw(t, "items"),
			})
		})
	})
	t.Run("InitializeResult", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			assertStableJSON(t, InitializeResult{
				Capabilities:    genServerCapabilities().Draw(t, "caps"),
				ServerInfo:      &Info{Name: rapid.String().Draw(t, "name")},
				ProtocolVersion: CurrentRevision,
			})
		})
	})
	t.Run("SymbolInformation", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			assertStableJSON(t, SymbolInformation{
				Name:     rapid.String().Draw(t, "name"),
				Kind:     SymbolKind(rapid.IntRange(1, 26).Draw(t, "kind")),
				Location: Location{URI: genURI().Draw(t, "uri"), Range: genRange().Draw(t, "range")},
			})
		})
	})
	t.Run("WorkspaceEdit", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			edits := rapid.MapOf(genURI(), rapid.SliceOfN(rapid.Custom(func(t *rapid.T) TextEdit {
				return TextEdit{Range: genRange().Draw(t, "range"), NewText: rapid.String().Draw(t, "text")}
			}), 1, 4)).Draw(t, "changes")
			assertStableJSON(t, ApplyWorkspaceEditParams{Label: "rename", Edit: WorkspaceEdit{Changes: edits}})
		})
	})
	t.Run("TextDocumentPublishDecorationsParams", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			assertStableJSON(t, TextDocumentPublishDecorationsParams{
				TextDocument: TextDocumentIdentifier{URI: genURI().Draw(t, "uri")},
				Decorations: []TextDocumentDecoration{{
					Range:           genRange().Draw(t, "range"),
					IsWholeLine:     rapid.Bool().Draw(t, "whole"),
					BackgroundColor: "#ff0000",
					After:           &DecorationAttachmentRenderOptions{ContentText: rapid.String().Draw(t, "after")},
				}},
			})
		})
	})
	t.Run("ColorInformation", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			unit := rapid.Float64Range(0, 1)
			assertStableJSON(t, ColorInformation{
				Range: genRange().Draw(t, "range"),
				Color: Color{Red: unit.Draw(t, "r"), Green: unit.Draw(t, "g"), Blue: unit.Draw(t, "b"), Alpha: unit.Draw(t, "a")},
			})
		})
	})
}

// Every declared params and result type must survive an encode/decode cycle
// from its zero value, which catches broken factories and custom codecs.
func TestRoundTrip_EveryDeclaration(t *testing.T) {
	schema := Default()
	for _, method := range schema.Methods() {
		decl, ok := schema.Lookup(method)
		require.True(t, ok)
		t.Run(method, func(t *testing.T) {
			factories := []func() any{decl.Params}
			if decl.Result != nil {
				factories = append(factories, decl.Result)
			}
			for _, factory := range factories {
				v := factory()
				first, err := json.Marshal(v)
				require.NoError(t, err)
				again := factory()
				require.NoError(t, json.Unmarshal(first, again))
				second, err := json.Marshal(again)
				require.NoError(t, err)
				assert.JSONEq(t, string(first), string(second))
			}
		})
	}
}
