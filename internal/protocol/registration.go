package protocol

import "encoding/json"

// Registration binds a method to a provider within a session.
type Registration struct {
	ID              string          `json:"id"`
	Method          string          `json:"method"`
	RegisterOptions json.RawMessage `json:"registerOptions,omitempty"`
}

// RegistrationParams are the parameters of client/registerCapability.
type RegistrationParams struct {
	Registrations []Registration `json:"registrations"`
}

// Unregistration removes a registration by id.
type Unregistration struct {
	ID     string `json:"id"`
	Method string `json:"method"`
}

// UnregistrationParams are the parameters of client/unregisterCapability.
// The misspelled field name is kept for wire compatibility with LSP.
type UnregistrationParams struct {
	Unregisterations []Unregistration `json:"unregisterations"`
}

// TextDocumentRegistrationOptions scope a registration to documents.
type TextDocumentRegistrationOptions struct {
	DocumentSelector DocumentSelector `json:"documentSelector,omitempty"`
}

// ExecuteCommandRegistrationOptions scope a command registration.
type ExecuteCommandRegistrationOptions struct {
	Commands []string `json:"commands"`
}
