package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CapabilityKind is the tag of a Capability.
type CapabilityKind uint8

const (
	CapabilityUnsupported CapabilityKind = iota
	CapabilityEnabled
	CapabilityOptions
)

func (k CapabilityKind) String() string {
	switch k {
	case CapabilityUnsupported:
		return "unsupported"
	case CapabilityEnabled:
		return "enabled"
	case CapabilityOptions:
		return "options"
	default:
		return "unknown"
	}
}

// Capability is a feature family declaration. On the wire it is absent or
// false (unsupported), true (enabled with defaults), or an options object.
type Capability struct {
	kind  CapabilityKind
	value any
	raw   json.RawMessage
}

// Unsupported returns a capability that declares nothing.
func Unsupported() Capability { return Capability{} }

// Enabled returns a capability enabled with default options.
func Enabled() Capability { return Capability{kind: CapabilityEnabled} }

// WithOptions returns a capability enabled with the given options value.
func WithOptions(options any) Capability {
	return Capability{kind: CapabilityOptions, value: options}
}

// Kind returns the capability tag.
func (c Capability) Kind() CapabilityKind { return c.kind }

// Supported reports whether the family is enabled in any shape.
func (c Capability) Supported() bool { return c.kind != CapabilityUnsupported }

// IsZero reports an unsupported capability, so omitzero drops it.
func (c Capability) IsZero() bool { return c.kind == CapabilityUnsupported }

// Options decodes the options object into dst. Enabled capabilities leave
// dst untouched; unsupported ones return an error.
func (c Capability) Options(dst any) error {
	switch c.kind {
	case CapabilityUnsupported:
		return fmt.Errorf("capability not supported")
	case CapabilityEnabled:
		return nil
	}
	raw := c.raw
	if raw == nil {
		b, err := json.Marshal(c.value)
		if err != nil {
			return fmt.Errorf("marshal capability options: %w", err)
		}
		raw = b
	}
	return json.Unmarshal(raw, dst)
}

// MarshalJSON implements json.Marshaler.
func (c Capability) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case CapabilityEnabled:
		return []byte("true"), nil
	case CapabilityOptions:
		if c.raw != nil {
			return c.raw, nil
		}
		return json.Marshal(c.value)
	default:
		return []byte("false"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Capability) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*c = Enabled()
	case bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte("null")):
		*c = Unsupported()
	case len(data) > 0 && data[0] == '{':
		*c = Capability{kind: CapabilityOptions, raw: append(json.RawMessage(nil), data...)}
	default:
		return fmt.Errorf("capability: expected boolean or object, got %s", data)
	}
	return nil
}

// TextDocumentSyncKind defines how text documents are synced.
type TextDocumentSyncKind int

const (
	SyncNone        TextDocumentSyncKind = 0
	SyncFull        TextDocumentSyncKind = 1
	SyncIncremental TextDocumentSyncKind = 2
)

func (k TextDocumentSyncKind) String() string {
	switch k {
	case SyncNone:
		return "none"
	case SyncFull:
		return "full"
	case SyncIncremental:
		return "incremental"
	default:
		return "unknown"
	}
}

// TextDocumentSyncOptions declares document sync behavior. A bare number
// on the wire is accepted as the change kind with open/close enabled.
type TextDocumentSyncOptions struct {
	OpenClose bool                 `json:"openClose"`
	Change    TextDocumentSyncKind `json:"change"`
	Save      bool                 `json:"save,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *TextDocumentSyncOptions) UnmarshalJSON(data []byte) error {
	var kind TextDocumentSyncKind
	if err := json.Unmarshal(data, &kind); err == nil {
		*o = TextDocumentSyncOptions{OpenClose: kind != SyncNone, Change: kind}
		return nil
	}
	type plain TextDocumentSyncOptions
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = TextDocumentSyncOptions(p)
	return nil
}

// ServerCapabilities are declared by an extension in its initialize result.
type ServerCapabilities struct {
	TextDocumentSync *TextDocumentSyncOptions `json:"textDocumentSync,omitempty"`

	HoverProvider             Capability `json:"hoverProvider,omitzero"`
	CompletionProvider        Capability `json:"completionProvider,omitzero"`
	DefinitionProvider        Capability `json:"definitionProvider,omitzero"`
	ReferencesProvider        Capability `json:"referencesProvider,omitzero"`
	CodeActionProvider        Capability `json:"codeActionProvider,omitzero"`
	CodeLensProvider          Capability `json:"codeLensProvider,omitzero"`
	DocumentHighlightProvider Capability `json:"documentHighlightProvider,omitzero"`
	DocumentLinkProvider      Capability `json:"documentLinkProvider,omitzero"`
	RenameProvider            Capability `json:"renameProvider,omitzero"`
	SignatureHelpProvider     Capability `json:"signatureHelpProvider,omitzero"`
	DocumentSymbolProvider    Capability `json:"documentSymbolProvider,omitzero"`
	FormattingProvider        Capability `json:"documentFormattingProvider,omitzero"`
	ColorProvider             Capability `json:"colorProvider,omitzero"`
	TypeDefinitionProvider    Capability `json:"typeDefinitionProvider,omitzero"`
	ImplementationProvider    Capability `json:"implementationProvider,omitzero"`
	WorkspaceSymbolProvider   Capability `json:"workspaceSymbolProvider,omitzero"`
	ExecuteCommandProvider    Capability `json:"executeCommandProvider,omitzero"`

	Workspace    *ServerWorkspaceCapabilities `json:"workspace,omitempty"`
	Experimental any                          `json:"experimental,omitempty"`
}

// ServerWorkspaceCapabilities are workspace-specific server capabilities.
type ServerWorkspaceCapabilities struct {
	WorkspaceFolders *WorkspaceFoldersServerCapabilities `json:"workspaceFolders,omitempty"`
}

// WorkspaceFoldersServerCapabilities declares workspace folder support.
type WorkspaceFoldersServerCapabilities struct {
	Supported           bool `json:"supported,omitempty"`
	ChangeNotifications bool `json:"changeNotifications,omitempty"`
}

func (c *ServerCapabilities) slot(f Family) *Capability {
	switch f {
	case FamilyHover:
		return &c.HoverProvider
	case FamilyCompletion:
		return &c.CompletionProvider
	case FamilyDefinition:
		return &c.DefinitionProvider
	case FamilyReferences:
		return &c.ReferencesProvider
	case FamilyCodeAction:
		return &c.CodeActionProvider
	case FamilyCodeLens:
		return &c.CodeLensProvider
	case FamilyDocumentHighlight:
		return &c.DocumentHighlightProvider
	case FamilyDocumentLink:
		return &c.DocumentLinkProvider
	case FamilyRename:
		return &c.RenameProvider
	case FamilySignatureHelp:
		return &c.SignatureHelpProvider
	case FamilyDocumentSymbol:
		return &c.DocumentSymbolProvider
	case FamilyFormatting:
		return &c.FormattingProvider
	case FamilyColor:
		return &c.ColorProvider
	case FamilyTypeDefinition:
		return &c.TypeDefinitionProvider
	case FamilyImplementation:
		return &c.ImplementationProvider
	case FamilyWorkspaceSymbol:
		return &c.WorkspaceSymbolProvider
	case FamilyExecuteCommand:
		return &c.ExecuteCommandProvider
	}
	return nil
}

// Capability returns the declaration for family f.
func (c *ServerCapabilities) Capability(f Family) Capability {
	if s := c.slot(f); s != nil {
		return *s
	}
	return Unsupported()
}

// SetCapability replaces the declaration for family f.
func (c *ServerCapabilities) SetCapability(f Family, capability Capability) {
	if s := c.slot(f); s != nil {
		*s = capability
	}
}

// Supports reports whether family f is declared.
func (c *ServerCapabilities) Supports(f Family) bool {
	return c.Capability(f).Supported()
}

// SupportedFamilies lists declared families in declaration order.
func (c *ServerCapabilities) SupportedFamilies() []Family {
	var out []Family
	for _, f := range Families() {
		if c.Supports(f) {
			out = append(out, f)
		}
	}
	return out
}

// SyncKind returns the declared change sync kind.
func (c *ServerCapabilities) SyncKind() TextDocumentSyncKind {
	if c.TextDocumentSync == nil {
		return SyncNone
	}
	return c.TextDocumentSync.Change
}

// CompletionOptions are the options of a completion provider.
type CompletionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
	ResolveProvider   bool     `json:"resolveProvider,omitempty"`
}

// SignatureHelpOptions are the options of a signature help provider.
type SignatureHelpOptions struct {
	TriggerCharacters   []string `json:"triggerCharacters,omitempty"`
	RetriggerCharacters []string `json:"retriggerCharacters,omitempty"`
}

// CodeActionOptions are the options of a code action provider.
type CodeActionOptions struct {
	CodeActionKinds []CodeActionKind `json:"codeActionKinds,omitempty"`
}

// CodeLensOptions are the options of a code lens provider.
type CodeLensOptions struct {
	ResolveProvider bool `json:"resolveProvider,omitempty"`
}

// DocumentLinkOptions are the options of a document link provider.
type DocumentLinkOptions struct {
	ResolveProvider bool `json:"resolveProvider,omitempty"`
}

// RenameOptions are the options of a rename provider.
type RenameOptions struct {
	PrepareProvider bool `json:"prepareProvider,omitempty"`
}

// ExecuteCommandOptions lists the commands an extension executes.
type ExecuteCommandOptions struct {
	Commands []string `json:"commands"`
}

// ClientCapabilities are declared by the host in its initialize request.
type ClientCapabilities struct {
	Workspace    *WorkspaceClientCapabilities    `json:"workspace,omitempty"`
	TextDocument *TextDocumentClientCapabilities `json:"textDocument,omitempty"`
	Window       *WindowClientCapabilities       `json:"window,omitempty"`
	Decoration   bool                            `json:"decoration,omitempty"`
	Experimental any                             `json:"experimental,omitempty"`
}

// WorkspaceClientCapabilities define workspace capabilities of the host.
type WorkspaceClientCapabilities struct {
	ApplyEdit              bool                `json:"applyEdit,omitempty"`
	Configuration          bool                `json:"configuration,omitempty"`
	WorkspaceFolders       bool                `json:"workspaceFolders,omitempty"`
	DidChangeConfiguration *DynamicRegistration `json:"didChangeConfiguration,omitempty"`
	DidChangeWatchedFiles  *DynamicRegistration `json:"didChangeWatchedFiles,omitempty"`
	Symbol                 *DynamicRegistration `json:"symbol,omitempty"`
	ExecuteCommand         *DynamicRegistration `json:"executeCommand,omitempty"`
}

// DynamicRegistration states whether a capability may be registered at runtime.
type DynamicRegistration struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
}

// TextDocumentClientCapabilities define text document capabilities of the host.
// A nil entry means the host does not consume that family.
type TextDocumentClientCapabilities struct {
	Synchronization    *TextDocumentSyncClientCapabilities   `json:"synchronization,omitempty"`
	Hover              *HoverClientCapabilities              `json:"hover,omitempty"`
	Completion         *CompletionClientCapabilities         `json:"completion,omitempty"`
	Definition         *DynamicRegistration                  `json:"definition,omitempty"`
	References         *DynamicRegistration                  `json:"references,omitempty"`
	CodeAction         *DynamicRegistration                  `json:"codeAction,omitempty"`
	CodeLens           *DynamicRegistration                  `json:"codeLens,omitempty"`
	DocumentHighlight  *DynamicRegistration                  `json:"documentHighlight,omitempty"`
	DocumentLink       *DynamicRegistration                  `json:"documentLink,omitempty"`
	Rename             *DynamicRegistration                  `json:"rename,omitempty"`
	SignatureHelp      *DynamicRegistration                  `json:"signatureHelp,omitempty"`
	DocumentSymbol     *DynamicRegistration                  `json:"documentSymbol,omitempty"`
	Formatting         *DynamicRegistration                  `json:"formatting,omitempty"`
	ColorProvider      *DynamicRegistration                  `json:"colorProvider,omitempty"`
	TypeDefinition     *DynamicRegistration                  `json:"typeDefinition,omitempty"`
	Implementation     *DynamicRegistration                  `json:"implementation,omitempty"`
	PublishDiagnostics *PublishDiagnosticsClientCapabilities `json:"publishDiagnostics,omitempty"`
}

// TextDocumentSyncClientCapabilities define document sync support of the host.
type TextDocumentSyncClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
	DidSave             bool `json:"didSave,omitempty"`
}

// HoverClientCapabilities define hover support of the host.
type HoverClientCapabilities struct {
	DynamicRegistration bool         `json:"dynamicRegistration,omitempty"`
	ContentFormat       []MarkupKind `json:"contentFormat,omitempty"`
}

// CompletionClientCapabilities define completion support of the host.
type CompletionClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
	SnippetSupport      bool `json:"snippetSupport,omitempty"`
}

// PublishDiagnosticsClientCapabilities define diagnostics support of the host.
type PublishDiagnosticsClientCapabilities struct {
	RelatedInformation bool `json:"relatedInformation,omitempty"`
	VersionSupport     bool `json:"versionSupport,omitempty"`
}

// WindowClientCapabilities define window features of the host.
type WindowClientCapabilities struct {
	ShowMessage bool `json:"showMessage,omitempty"`
	ShowInput   bool `json:"showInput,omitempty"`
}

// Consumes reports whether the host declared it consumes family f. Hosts
// that omit textDocument capabilities entirely are treated as consuming
// every document family.
func (c *ClientCapabilities) Consumes(f Family) bool {
	td := c.TextDocument
	switch f {
	case FamilyWorkspaceSymbol:
		return c.Workspace == nil || c.Workspace.Symbol != nil
	case FamilyExecuteCommand:
		return c.Workspace == nil || c.Workspace.ExecuteCommand != nil
	}
	if td == nil {
		return true
	}
	switch f {
	case FamilyHover:
		return td.Hover != nil
	case FamilyCompletion:
		return td.Completion != nil
	case FamilyDefinition:
		return td.Definition != nil
	case FamilyReferences:
		return td.References != nil
	case FamilyCodeAction:
		return td.CodeAction != nil
	case FamilyCodeLens:
		return td.CodeLens != nil
	case FamilyDocumentHighlight:
		return td.DocumentHighlight != nil
	case FamilyDocumentLink:
		return td.DocumentLink != nil
	case FamilyRename:
		return td.Rename != nil
	case FamilySignatureHelp:
		return td.SignatureHelp != nil
	case FamilyDocumentSymbol:
		return td.DocumentSymbol != nil
	case FamilyFormatting:
		return td.Formatting != nil
	case FamilyColor:
		return td.ColorProvider != nil
	case FamilyTypeDefinition:
		return td.TypeDefinition != nil
	case FamilyImplementation:
		return td.Implementation != nil
	}
	return false
}

// DefaultClientCapabilities returns capabilities for a host that consumes
// every family.
func DefaultClientCapabilities() ClientCapabilities {
	dyn := &DynamicRegistration{DynamicRegistration: true}
	return ClientCapabilities{
		Workspace: &WorkspaceClientCapabilities{
			ApplyEdit:              true,
			Configuration:          true,
			WorkspaceFolders:       true,
			DidChangeConfiguration: dyn,
			DidChangeWatchedFiles:  dyn,
			Symbol:                 dyn,
			ExecuteCommand:         dyn,
		},
		TextDocument: &TextDocumentClientCapabilities{
			Synchronization:    &TextDocumentSyncClientCapabilities{DynamicRegistration: true, DidSave: true},
			Hover:              &HoverClientCapabilities{DynamicRegistration: true, ContentFormat: []MarkupKind{MarkupKindMarkdown, MarkupKindPlainText}},
			Completion:         &CompletionClientCapabilities{DynamicRegistration: true},
			Definition:         dyn,
			References:         dyn,
			CodeAction:         dyn,
			CodeLens:           dyn,
			DocumentHighlight:  dyn,
			DocumentLink:       dyn,
			Rename:             dyn,
			SignatureHelp:      dyn,
			DocumentSymbol:     dyn,
			Formatting:         dyn,
			ColorProvider:      dyn,
			TypeDefinition:     dyn,
			Implementation:     dyn,
			PublishDiagnostics: &PublishDiagnosticsClientCapabilities{RelatedInformation: true, VersionSupport: true},
		},
		Window:     &WindowClientCapabilities{ShowMessage: true, ShowInput: true},
		Decoration: true,
	}
}
