package router

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dshills/exthost/internal/protocol"
	"github.com/tidwall/gjson"
)

// isNull reports an absent or JSON null reply.
func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// first returns the first non-empty decoded reply in registration order.
// Replies that fail to decode are recorded against their provider.
func first[T any](method string, o *outcome, decode func(json.RawMessage) (T, bool, error)) T {
	var zero T
	for _, rep := range o.replies {
		v, ok, err := decode(rep.raw)
		if err != nil {
			o.fail(rep.provider, method, fmt.Errorf("decode reply: %w", err))
			continue
		}
		if ok {
			return v
		}
	}
	return zero
}

// union concatenates every decoded reply in registration order, keeping
// the first item for each key.
func union[T any](method string, o *outcome, decode func(json.RawMessage) ([]T, error), key func(T) string) []T {
	out := []T{}
	seen := make(map[string]bool)
	for _, rep := range o.replies {
		items, err := decode(rep.raw)
		if err != nil {
			o.fail(rep.provider, method, fmt.Errorf("decode reply: %w", err))
			continue
		}
		for _, it := range items {
			k := key(it)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, it)
		}
	}
	return out
}

// decodeList decodes a JSON array, treating null as empty.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	if isNull(raw) {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeOne decodes a single object reply; ok is false for null or when
// empty reports the value as empty.
func decodeOne[T any](empty func(*T) bool) func(json.RawMessage) (*T, bool, error) {
	return func(raw json.RawMessage) (*T, bool, error) {
		if isNull(raw) {
			return nil, false, nil
		}
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, false, err
		}
		if empty(v) {
			return nil, false, nil
		}
		return v, true, nil
	}
}

// decodeCompletion accepts a completion list or a bare item array.
func decodeCompletion(raw json.RawMessage) (protocol.CompletionList, error) {
	if isNull(raw) {
		return protocol.CompletionList{}, nil
	}
	if gjson.ParseBytes(raw).IsArray() {
		items, err := decodeList[protocol.CompletionItem](raw)
		return protocol.CompletionList{Items: items}, err
	}
	var list protocol.CompletionList
	err := json.Unmarshal(raw, &list)
	return list, err
}

// decodeLocations accepts a single location, a location array or a
// location link array. Links are reduced to their target selection range.
func decodeLocations(raw json.RawMessage) ([]protocol.Location, error) {
	if isNull(raw) {
		return nil, nil
	}
	res := gjson.ParseBytes(raw)
	if !res.IsArray() {
		var loc protocol.Location
		if err := json.Unmarshal(raw, &loc); err != nil {
			return nil, err
		}
		return []protocol.Location{loc}, nil
	}
	if res.Get("0.targetUri").Exists() {
		links, err := decodeList[protocol.LocationLink](raw)
		if err != nil {
			return nil, err
		}
		out := make([]protocol.Location, len(links))
		for i, l := range links {
			out[i] = protocol.Location{URI: l.TargetURI, Range: l.TargetSelectionRange}
		}
		return out, nil
	}
	return decodeList[protocol.Location](raw)
}

// decodeCodeActions accepts code actions mixed with bare commands. A bare
// command is recognized by a string "command" member and becomes an action
// with the same title.
func decodeCodeActions(raw json.RawMessage) ([]protocol.CodeAction, error) {
	if isNull(raw) {
		return nil, nil
	}
	res := gjson.ParseBytes(raw)
	if !res.IsArray() {
		return nil, fmt.Errorf("code actions: expected array, got %s", res.Type)
	}
	var out []protocol.CodeAction
	var err error
	res.ForEach(func(_, elem gjson.Result) bool {
		if elem.Get("command").Type == gjson.String {
			var cmd protocol.Command
			if err = json.Unmarshal([]byte(elem.Raw), &cmd); err != nil {
				return false
			}
			out = append(out, protocol.CodeAction{Title: cmd.Title, Command: &cmd})
			return true
		}
		var action protocol.CodeAction
		if err = json.Unmarshal([]byte(elem.Raw), &action); err != nil {
			return false
		}
		out = append(out, action)
		return true
	})
	return out, err
}

func decodeEdits(raw json.RawMessage) ([]protocol.TextEdit, bool, error) {
	edits, err := decodeList[protocol.TextEdit](raw)
	return edits, len(edits) > 0, err
}

// Dedup keys.

func rangeKey(r protocol.Range) string { return r.String() }

func locationKey(l protocol.Location) string {
	return string(l.URI) + "#" + rangeKey(l.Range)
}

func completionKey(c protocol.CompletionItem) string {
	return c.Label + "\x00" + c.EffectiveInsertText()
}

func symbolKey(s protocol.SymbolInformation) string {
	return fmt.Sprintf("%s\x00%d\x00%s", s.Name, s.Kind, locationKey(s.Location))
}

func codeActionKey(a protocol.CodeAction) string {
	return a.Title + "\x00" + string(a.Kind)
}

func codeLensKey(l protocol.CodeLens) string {
	cmd := ""
	if l.Command != nil {
		cmd = l.Command.Command
	}
	return rangeKey(l.Range) + "\x00" + cmd
}

func highlightKey(h protocol.DocumentHighlight) string {
	return fmt.Sprintf("%s\x00%d", rangeKey(h.Range), h.Kind)
}

func linkKey(l protocol.DocumentLink) string {
	return rangeKey(l.Range) + "\x00" + l.Target
}

func colorKey(c protocol.ColorInformation) string {
	return fmt.Sprintf("%s\x00%g,%g,%g,%g", rangeKey(c.Range), c.Color.Red, c.Color.Green, c.Color.Blue, c.Color.Alpha)
}
