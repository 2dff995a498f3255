// Package manifest loads extension manifests.
//
// A manifest names an extension, says how to run it and declares the
// documents it is interested in and the actions it contributes. Manifests
// are YAML, JSON or TOML, chosen by file extension:
//
//	id: gopher
//	version: 1.2.0
//	runtime: process
//	command: ./bin/gopher
//	args: [--stdio]
//	activation:
//	  languages: [go]
//	contributions:
//	  actions:
//	    - id: gopher.organize
//	      command: gopher.organizeImports
//	      title: Organize Imports
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dshills/exthost/internal/contribution"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/registry"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Runtime kinds.
const (
	RuntimeProcess   = "process"
	RuntimeWebSocket = "websocket"
	RuntimeLua       = "lua"
)

// Errors returned by Load.
var (
	ErrUnknownFormat = errors.New("manifest: unknown file format")
	ErrInvalid       = errors.New("manifest: invalid")
)

// Manifest describes one extension.
type Manifest struct {
	ID          string `json:"id" yaml:"id" toml:"id" validate:"required,extid"`
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty" toml:"displayName"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty" toml:"version" validate:"omitempty,semver"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description"`

	Runtime string            `json:"runtime" yaml:"runtime" toml:"runtime" validate:"required,oneof=process websocket lua"`
	Command string            `json:"command,omitempty" yaml:"command,omitempty" toml:"command" validate:"required_if=Runtime process"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty" toml:"args"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env"`
	Dir     string            `json:"dir,omitempty" yaml:"dir,omitempty" toml:"dir"`
	URL     string            `json:"url,omitempty" yaml:"url,omitempty" toml:"url" validate:"required_if=Runtime websocket,omitempty,url"`
	Script  string            `json:"script,omitempty" yaml:"script,omitempty" toml:"script" validate:"required_if=Runtime lua"`

	Activation Activation `json:"activation,omitempty" yaml:"activation,omitempty" toml:"activation"`

	// DocumentSelector restricts document sync and static registrations.
	// When empty it is derived from the activation languages.
	DocumentSelector protocol.DocumentSelector `json:"documentSelector,omitempty" yaml:"documentSelector,omitempty" toml:"documentSelector" validate:"dive"`

	InitializationOptions any `json:"initializationOptions,omitempty" yaml:"initializationOptions,omitempty" toml:"initializationOptions"`

	Contributions protocol.Contributions `json:"contributions,omitempty" yaml:"contributions,omitempty" toml:"contributions"`

	path string
}

// Activation says when the host starts an extension.
type Activation struct {
	// Languages starts the extension when a document of one of these
	// languages is opened. An empty list starts it with the host.
	Languages []string `json:"languages,omitempty" yaml:"languages,omitempty" toml:"languages" validate:"dive,required"`
}

var (
	validate *validator.Validate
	idRE     = regexp.MustCompile(`^[a-z][a-z0-9]*([.-][a-z0-9]+)*$`)
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("extid", func(fl validator.FieldLevel) bool {
		return idRE.MatchString(fl.Field().String())
	})
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	m.path = abs
	return m, nil
}

// Parse decodes and validates a manifest. ext selects the format and is a
// file extension such as ".yaml".
func Parse(data []byte, ext string) (*Manifest, error) {
	var m Manifest
	var err error
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&m)
	case ".toml":
		err = toml.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks required fields, runtime settings, selector patterns
// and that every menu item names a declared action.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	actions := make(map[string]bool, len(m.Contributions.Actions))
	for _, a := range m.Contributions.Actions {
		if actions[a.ID] {
			return fmt.Errorf("%w: duplicate action %q", ErrInvalid, a.ID)
		}
		actions[a.ID] = true
		if _, err := contribution.Compile(a.When); err != nil {
			return fmt.Errorf("%w: action %q: %v", ErrInvalid, a.ID, err)
		}
	}
	for menu, items := range m.Contributions.Menus {
		for _, it := range items {
			if !actions[it.Action] {
				return fmt.Errorf("%w: menu %s refers to unknown action %q", ErrInvalid, menu, it.Action)
			}
			if _, err := contribution.Compile(it.When); err != nil {
				return fmt.Errorf("%w: menu %s: %v", ErrInvalid, menu, err)
			}
		}
	}
	if err := registry.ValidateSelector(m.Selector()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Root is the directory the manifest was loaded from. It is empty for
// parsed manifests.
func (m *Manifest) Root() string { return m.path }

// Name is the display name, falling back to the id.
func (m *Manifest) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.ID
}

// Selector returns the effective document selector.
func (m *Manifest) Selector() protocol.DocumentSelector {
	if len(m.DocumentSelector) > 0 {
		return m.DocumentSelector
	}
	if len(m.Activation.Languages) == 0 {
		return nil
	}
	sel := make(protocol.DocumentSelector, 0, len(m.Activation.Languages))
	for _, lang := range m.Activation.Languages {
		sel = append(sel, protocol.DocumentFilter{Language: lang})
	}
	return sel
}

// Eager reports whether the extension starts with the host.
func (m *Manifest) Eager() bool { return len(m.Activation.Languages) == 0 }

// ActivatesOn reports whether opening a document of languageID starts the
// extension.
func (m *Manifest) ActivatesOn(languageID string) bool {
	for _, lang := range m.Activation.Languages {
		if lang == languageID || lang == "*" {
			return true
		}
	}
	return false
}

// Source returns the contributions for the evaluator.
func (m *Manifest) Source() contribution.Source {
	return contribution.Source{Extension: m.ID, Contributions: m.Contributions}
}

// resolve makes p absolute relative to the manifest directory.
func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.path == "" {
		return p
	}
	return filepath.Join(m.path, p)
}

func (m *Manifest) String() string {
	if m.Version == "" {
		return m.ID
	}
	return fmt.Sprintf("%s v%s", m.ID, m.Version)
}

// LoadAll loads every manifest in paths. Extension ids must be unique.
func LoadAll(paths []string) ([]*Manifest, error) {
	out := make([]*Manifest, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		m, err := Load(p)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[m.ID]; ok {
			return nil, fmt.Errorf("%w: extension %q declared by %s and %s", ErrInvalid, m.ID, prev, p)
		}
		seen[m.ID] = p
		out = append(out, m)
	}
	return out, nil
}
