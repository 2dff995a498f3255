package host

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/dshills/exthost/internal/protocol"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Settings is the JSON settings document extensions read with
// workspace/configuration and edit with configuration/update. It is safe
// for concurrent use.
type Settings struct {
	mu  sync.RWMutex
	doc []byte
}

// NewSettings creates a settings document. An empty doc is an empty
// object.
func NewSettings(doc json.RawMessage) (*Settings, error) {
	s := &Settings{}
	if err := s.Replace(doc); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace swaps the whole document.
func (s *Settings) Replace(doc json.RawMessage) error {
	if len(strings.TrimSpace(string(doc))) == 0 {
		doc = json.RawMessage("{}")
	}
	if !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject() {
		return protocol.Errorf(protocol.CodeInvalidParams, "settings must be a JSON object")
	}
	s.mu.Lock()
	s.doc = append([]byte(nil), doc...)
	s.mu.Unlock()
	return nil
}

// Raw returns a copy of the document.
func (s *Settings) Raw() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(json.RawMessage(nil), s.doc...)
}

// Section returns the value at a dotted section name, the whole document
// for an empty section, or null when the section does not exist.
func (s *Settings) Section(section string) json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if section == "" {
		return append(json.RawMessage(nil), s.doc...)
	}
	res := gjson.GetBytes(s.doc, section)
	if !res.Exists() {
		return json.RawMessage("null")
	}
	return json.RawMessage(res.Raw)
}

// Update sets the value at path. A null or empty value removes the key.
// Path elements are object keys (strings) or array indexes (integral
// numbers).
func (s *Settings) Update(path []any, value json.RawMessage) error {
	p, err := settingsPath(path)
	if err != nil {
		return err
	}
	remove := len(value) == 0 || strings.TrimSpace(string(value)) == "null"
	if !remove && !gjson.ValidBytes(value) {
		return protocol.Errorf(protocol.CodeInvalidParams, "configuration value is not valid JSON")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var doc []byte
	if remove {
		doc, err = sjson.DeleteBytes(s.doc, p)
	} else {
		doc, err = sjson.SetRawBytes(s.doc, p, value)
	}
	if err != nil {
		return protocol.Errorf(protocol.CodeInvalidParams, "update %s: %v", p, err)
	}
	s.doc = doc
	return nil
}

// settingsPath converts a key path into sjson path syntax.
func settingsPath(path []any) (string, error) {
	if len(path) == 0 {
		return "", protocol.Errorf(protocol.CodeInvalidParams, "configuration path is empty")
	}
	parts := make([]string, 0, len(path))
	for _, el := range path {
		switch v := el.(type) {
		case string:
			if v == "" {
				return "", protocol.Errorf(protocol.CodeInvalidParams, "configuration path has an empty key")
			}
			parts = append(parts, escapeKey(v))
		case float64:
			if v < 0 || v != math.Trunc(v) {
				return "", protocol.Errorf(protocol.CodeInvalidParams, "configuration path index %v is not a non-negative integer", v)
			}
			parts = append(parts, strconv.FormatInt(int64(v), 10))
		case int:
			if v < 0 {
				return "", protocol.Errorf(protocol.CodeInvalidParams, "configuration path index %d is negative", v)
			}
			parts = append(parts, strconv.Itoa(v))
		default:
			return "", protocol.Errorf(protocol.CodeInvalidParams, "configuration path element of type %T", el)
		}
	}
	return strings.Join(parts, "."), nil
}

// escapeKey escapes the characters sjson treats as path syntax.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	key = b.String()
	// A purely numeric key would address an array element.
	if _, err := strconv.Atoi(key); err == nil {
		return ":" + key
	}
	return key
}
