package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/extension/lua"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gopherYAML = `
id: gopher
displayName: Gopher
version: 1.2.0
runtime: process
command: ./bin/gopher
args: [--stdio]
env:
  GOPHER_MODE: strict
activation:
  languages: [go]
initializationOptions:
  staticcheck: true
contributions:
  actions:
    - id: gopher.organize
      command: gopher.organizeImports
      title: Organize Imports
      when: resource.language == go
  menus:
    editor/context:
      - action: gopher.organize
        group: source
`

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	m, err := Load(write(t, dir, "gopher.yaml", gopherYAML))
	require.NoError(t, err)

	assert.Equal(t, "gopher", m.ID)
	assert.Equal(t, "Gopher", m.Name())
	assert.Equal(t, "gopher v1.2.0", m.String())
	assert.False(t, m.Eager())
	assert.True(t, m.ActivatesOn("go"))
	assert.False(t, m.ActivatesOn("python"))
	assert.Equal(t, protocol.DocumentSelector{{Language: "go"}}, m.Selector())
	assert.Equal(t, map[string]any{"staticcheck": true}, m.InitializationOptions)

	src := m.Source()
	assert.Equal(t, "gopher", src.Extension)
	require.Len(t, src.Contributions.Actions, 1)
	assert.Equal(t, "gopher.organizeImports", src.Contributions.Actions[0].Command)
	assert.Len(t, src.Contributions.Menus[protocol.MenuEditorContext], 1)

	rt, err := m.NewRuntime(RuntimeOptions{ExtraEnviron: map[string]string{"GOPHER_MODE": "lax", "HOME": "/tmp"}})
	require.NoError(t, err)
	proc, ok := rt.(*extension.Process)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(m.Root(), "bin", "gopher"), proc.Command)
	assert.Equal(t, []string{"--stdio"}, proc.Args)
	assert.Equal(t, "strict", proc.Env["GOPHER_MODE"])
	assert.Equal(t, "/tmp", proc.Env["HOME"])
	assert.Equal(t, m.Root(), proc.Dir)
}

func TestParse_JSONAndTOML(t *testing.T) {
	m, err := Parse([]byte(`{"id":"remote","runtime":"websocket","url":"ws://localhost:9000/ext"}`), ".json")
	require.NoError(t, err)
	assert.True(t, m.Eager())
	rt, err := m.NewRuntime(RuntimeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "websocket", rt.Kind())

	m, err = Parse([]byte(`
id = "notes"
runtime = "lua"
script = "notes.lua"

[activation]
languages = ["markdown", "text"]

[[documentSelector]]
language = "markdown"
pattern = "**/*.md"
`), ".toml")
	require.NoError(t, err)
	assert.Equal(t, protocol.DocumentSelector{{Language: "markdown", Pattern: "**/*.md"}}, m.Selector())
	rt, err = m.NewRuntime(RuntimeOptions{})
	require.NoError(t, err)
	l, ok := rt.(*lua.Runtime)
	require.True(t, ok)
	assert.Equal(t, "notes.lua", l.Path)
	assert.Equal(t, "notes", l.Name)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing id", `runtime: lua
script: a.lua`},
		{"bad id", `id: Bad_ID
runtime: lua
script: a.lua`},
		{"unknown runtime", `id: x
runtime: wasm`},
		{"process without command", `id: x
runtime: process`},
		{"websocket without url", `id: x
runtime: websocket`},
		{"bad version", `id: x
runtime: lua
script: a.lua
version: one`},
		{"bad pattern", `id: x
runtime: lua
script: a.lua
documentSelector:
  - pattern: "[a"`},
		{"bad when", `id: x
runtime: lua
script: a.lua
contributions:
  actions:
    - id: a
      command: c
      when: "a &&"`},
		{"unknown menu action", `id: x
runtime: lua
script: a.lua
contributions:
  menus:
    commandPalette:
      - action: missing`},
		{"duplicate action", `id: x
runtime: lua
script: a.lua
contributions:
  actions:
    - {id: a, command: c}
    - {id: a, command: d}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), ".yaml")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParse_UnknownFormat(t *testing.T) {
	_, err := Parse([]byte("id: x"), ".ini")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Parse([]byte(`{"id":"x","runtime":"lua","script":"a.lua","extra":1}`), ".json")
	require.Error(t, err)
}

func TestLoadAll_DuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	a := write(t, dir, "a.yaml", "id: dup\nruntime: lua\nscript: a.lua\n")
	b := write(t, dir, "b.yml", "id: dup\nruntime: lua\nscript: b.lua\n")

	_, err := LoadAll([]string{a, b})
	assert.ErrorIs(t, err, ErrInvalid)

	ms, err := LoadAll([]string{a})
	require.NoError(t, err)
	assert.Len(t, ms, 1)
}
