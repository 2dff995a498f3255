package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "EXTHOST_"

// sections are the top-level keys an environment variable may target.
var sections = map[string]bool{
	"log":        true,
	"router":     true,
	"session":    true,
	"extensions": true,
	"workspace":  true,
	"http":       true,
	"telemetry":  true,
	"messages":   true,
	"settings":   true,
}

// overlayEnv sets every EXTHOST_<SECTION>_<KEY> variable in environ onto
// tree. Variables naming no known section are ignored.
func overlayEnv(tree map[string]any, environ []string) error {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		path, ok := envToPath(name)
		if !ok {
			continue
		}
		if err := setByPath(tree, path, parseValue(value)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
		}
	}
	return nil
}

// envToPath converts EXTHOST_ROUTER_PROVIDER_TIMEOUT to
// router.providerTimeout.
func envToPath(env string) (string, bool) {
	parts := strings.Split(strings.TrimPrefix(env, EnvPrefix), "_")
	if len(parts) < 2 {
		return "", false
	}
	section := strings.ToLower(parts[0])
	if !sections[section] {
		return "", false
	}
	key := strings.ToLower(parts[1])
	for _, part := range parts[2:] {
		if part == "" {
			continue
		}
		key += strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
	}
	return section + "." + key, true
}

// parseValue converts an environment string to the type it most likely
// holds. Durations stay strings; the decoder parses them.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	return s
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(tree map[string]any, path string, value any) error {
	parts := strings.Split(path, ".")
	cur := tree
	for _, part := range parts[:len(parts)-1] {
		switch next := cur[part].(type) {
		case map[string]any:
			cur = next
		case nil:
			m := make(map[string]any)
			cur[part] = m
			cur = m
		default:
			return fmt.Errorf("%s is not a table", part)
		}
	}
	cur[parts[len(parts)-1]] = value
	return nil
}
