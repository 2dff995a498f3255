package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads the configuration file at path, overlays the process
// environment, and validates the result. An empty path yields the defaults
// with the environment applied. Relative manifest and folder paths are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	if path == "" {
		return Parse(nil, "", os.Environ())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	cfg, err := Parse(data, filepath.Ext(path), os.Environ())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	cfg.resolve(dir)
	return cfg, nil
}

// Parse decodes data in the format named by ext (".toml", ".yaml" or
// ".yml"), overlays the EXTHOST_* variables found in environ, and validates
// the result. Empty data is allowed.
func Parse(data []byte, ext string, environ []string) (*Config, error) {
	tree, err := parseTree(data, ext)
	if err != nil {
		return nil, err
	}
	if err := overlayEnv(tree, environ); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := decode(tree, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseTree(data []byte, ext string) (map[string]any, error) {
	tree := make(map[string]any)
	if len(bytes.TrimSpace(data)) == 0 {
		return tree, nil
	}
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("parsing toml: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	return tree, nil
}

// decode applies tree onto cfg. Keys absent from tree keep their current
// values; unknown keys are rejected.
func decode(tree map[string]any, cfg *Config) error {
	if len(tree) == 0 {
		return nil
	}
	data, err := yaml.Marshal(tree)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (c *Config) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i, p := range c.Extensions.Manifests {
		c.Extensions.Manifests[i] = abs(p)
	}
	for i, p := range c.Workspace.Folders {
		c.Workspace.Folders[i] = abs(p)
	}
	if o := c.Log.Output; o != "stderr" && o != "stdout" {
		c.Log.Output = abs(o)
	}
}
