package protocol

import "encoding/json"

// ConfigurationParams are the parameters of workspace/configuration.
// The result holds one value per item, in order.
type ConfigurationParams struct {
	Items []ConfigurationItem `json:"items"`
}

// ConfigurationItem selects a settings section. An empty section selects
// the whole settings document.
type ConfigurationItem struct {
	ScopeURI DocumentURI `json:"scopeUri,omitempty"`
	Section  string      `json:"section,omitempty"`
}

// DidChangeConfigurationParams are the parameters of
// workspace/didChangeConfiguration.
type DidChangeConfigurationParams struct {
	Settings json.RawMessage `json:"settings"`
}

// ConfigurationUpdateParams are the parameters of configuration/update. Path
// is a key path into the settings document; a null value removes the key.
type ConfigurationUpdateParams struct {
	Path  []any           `json:"path"`
	Value json.RawMessage `json:"value"`
}
