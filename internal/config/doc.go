// Package config loads the host configuration.
//
// Configuration is layered, lowest precedence first:
//
//  1. Built-in defaults (Default)
//  2. A TOML or YAML file, chosen by extension
//  3. EXTHOST_* environment variables
//
// Environment variables map onto configuration paths by section:
// EXTHOST_ROUTER_PROVIDER_TIMEOUT sets router.providerTimeout. Values are
// parsed as booleans, numbers, or JSON arrays and objects when they look
// like one, and are strings otherwise.
//
// The merged result is validated with struct tags before it is returned.
package config
