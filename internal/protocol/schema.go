package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Catalog revisions. Methods declare the revision that introduced them; a
// session only exchanges methods both sides know.
const (
	Revision10 = "1.0"
	Revision11 = "1.1"
	Revision12 = "1.2"

	CurrentRevision = Revision12
)

// MessageKind distinguishes requests from notifications.
type MessageKind int

const (
	KindRequest MessageKind = iota + 1
	KindNotification
)

// Direction is the sending side of a method.
type Direction int

const (
	HostToExtension Direction = iota + 1
	ExtensionToHost
)

// Declaration describes one method of the catalog.
type Declaration struct {
	Method    string
	Kind      MessageKind
	Direction Direction
	Since     string
	Family    Family

	// Params and Result return pointers to fresh zero values. Result is nil
	// for notifications.
	Params func() any
	Result func() any

	// Schema optionally constrains the params JSON.
	Schema string
}

// Schema is a versioned registry of method declarations.
type Schema struct {
	mu       sync.RWMutex
	decls    map[string]*Declaration
	compiled map[string]*jsonschema.Schema
}

// NewSchema returns an empty registry.
func NewSchema() *Schema {
	return &Schema{
		decls:    make(map[string]*Declaration),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Declare adds a declaration. Methods are declared exactly once.
func (s *Schema) Declare(d Declaration) error {
	if d.Method == "" || d.Params == nil {
		return fmt.Errorf("declaration %q: method and params are required", d.Method)
	}
	if d.Kind == KindRequest && d.Result == nil {
		return fmt.Errorf("declaration %q: requests need a result", d.Method)
	}
	if d.Since == "" {
		d.Since = Revision10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.decls[d.Method]; ok {
		return fmt.Errorf("declaration %q: already declared", d.Method)
	}
	if d.Schema != "" {
		compiled, err := jsonschema.CompileString(d.Method+".json", d.Schema)
		if err != nil {
			return fmt.Errorf("declaration %q: %w", d.Method, err)
		}
		s.compiled[d.Method] = compiled
	}
	s.decls[d.Method] = &d
	return nil
}

// Lookup returns the declaration of method.
func (s *Schema) Lookup(method string) (Declaration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decls[method]
	if !ok {
		return Declaration{}, false
	}
	return *d, true
}

// Methods lists declared methods in sorted order.
func (s *Schema) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.decls))
	for m := range s.decls {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Available reports whether method exists at the given revision.
func (s *Schema) Available(method, revision string) bool {
	d, ok := s.Lookup(method)
	if !ok {
		return false
	}
	return CompareRevisions(d.Since, revision) <= 0
}

// Validate checks raw params against the method's schema, if any.
func (s *Schema) Validate(method string, raw json.RawMessage) error {
	s.mu.RLock()
	compiled := s.compiled[method]
	s.mu.RUnlock()
	if compiled == nil {
		return nil
	}
	var doc any
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
	}
	if err := compiled.Validate(doc); err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params for " + method, Data: err.Error()}
	}
	return nil
}

// DecodeParams validates raw and decodes it into the declared params type.
func (s *Schema) DecodeParams(method string, raw json.RawMessage) (any, error) {
	d, ok := s.Lookup(method)
	if !ok {
		return nil, Errorf(CodeMethodNotFound, "method not found: %s", method)
	}
	if err := s.Validate(method, raw); err != nil {
		return nil, err
	}
	v := d.Params()
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return v, nil
}

// CompareRevisions compares two "major.minor" revisions.
func CompareRevisions(a, b string) int {
	am, an := splitRevision(a)
	bm, bn := splitRevision(b)
	switch {
	case am != bm:
		if am < bm {
			return -1
		}
		return 1
	case an < bn:
		return -1
	case an > bn:
		return 1
	}
	return 0
}

// MinRevision returns the older of two revisions. An empty revision means
// the peer did not announce one and is treated as the base revision.
func MinRevision(a, b string) string {
	if a == "" {
		a = Revision10
	}
	if b == "" {
		b = Revision10
	}
	if CompareRevisions(a, b) <= 0 {
		return a
	}
	return b
}

func splitRevision(r string) (int, int) {
	major, minor, _ := strings.Cut(r, ".")
	m, _ := strconv.Atoi(major)
	n, _ := strconv.Atoi(minor)
	return m, n
}

var (
	defaultSchema     *Schema
	defaultSchemaOnce sync.Once
)

// Default returns the catalog of every method.
func Default() *Schema {
	defaultSchemaOnce.Do(func() {
		s := NewSchema()
		for _, d := range catalog() {
			if err := s.Declare(d); err != nil {
				panic(err)
			}
		}
		defaultSchema = s
	})
	return defaultSchema
}

func ptr[T any]() func() any { return func() any { return new(T) } }

const (
	uriSchema     = `{"type": "string", "minLength": 1}`
	positionShape = `{"type": "object", "required": ["line", "character"], "properties": {"line": {"type": "integer", "minimum": 0}, "character": {"type": "integer", "minimum": 0}}}`
	docIDShape    = `{"type": "object", "required": ["uri"], "properties": {"uri": ` + uriSchema + `}}`
	posParams     = `{"type": "object", "required": ["textDocument", "position"], "properties": {"textDocument": ` + docIDShape + `, "position": ` + positionShape + `}}`
	docParams     = `{"type": "object", "required": ["textDocument"], "properties": {"textDocument": ` + docIDShape + `}}`
	rangeShape    = `{"type": "object", "required": ["start", "end"], "properties": {"start": ` + positionShape + `, "end": ` + positionShape + `}}`
)

func catalog() []Declaration {
	req := func(method string, dir Direction, since string, fam Family, params, result func() any, schema string) Declaration {
		return Declaration{Method: method, Kind: KindRequest, Direction: dir, Since: since, Family: fam, Params: params, Result: result, Schema: schema}
	}
	note := func(method string, dir Direction, since string, params func() any, schema string) Declaration {
		return Declaration{Method: method, Kind: KindNotification, Direction: dir, Since: since, Params: params, Schema: schema}
	}
	h2e, e2h := HostToExtension, ExtensionToHost

	return []Declaration{
		// lifecycle
		req(MethodInitialize, h2e, Revision10, 0, ptr[InitializeParams](), ptr[InitializeResult](),
			`{"type": "object", "required": ["capabilities"]}`),
		note(MethodInitialized, h2e, Revision10, ptr[InitializedParams](), ""),
		req(MethodShutdown, h2e, Revision10, 0, ptr[struct{}](), ptr[struct{}](), ""),
		note(MethodExit, h2e, Revision10, ptr[struct{}](), ""),
		note(MethodCancel, h2e, Revision10, ptr[CancelParams](), `{"type": "object", "required": ["id"]}`),

		// document sync
		note(MethodDidOpen, h2e, Revision10, ptr[DidOpenTextDocumentParams](),
			`{"type": "object", "required": ["textDocument"], "properties": {"textDocument": {"type": "object", "required": ["uri", "languageId", "version", "text"], "properties": {"uri": `+uriSchema+`, "version": {"type": "integer", "minimum": 0, "maximum": 2147483647}}}}}`),
		note(MethodDidChange, h2e, Revision10, ptr[DidChangeTextDocumentParams](),
			`{"type": "object", "required": ["textDocument", "contentChanges"], "properties": {"textDocument": {"type": "object", "required": ["uri", "version"], "properties": {"uri": `+uriSchema+`, "version": {"type": "integer", "minimum": 0, "maximum": 2147483647}}}, "contentChanges": {"type": "array", "items": {"type": "object", "required": ["text"], "properties": {"range": `+rangeShape+`}}}}}`),
		note(MethodDidClose, h2e, Revision10, ptr[DidCloseTextDocumentParams](), docParams),
		note(MethodDidSave, h2e, Revision10, ptr[DidSaveTextDocumentParams](), docParams),

		// features
		req(MethodHover, h2e, Revision10, FamilyHover, ptr[HoverParams](), ptr[Hover](), posParams),
		req(MethodCompletion, h2e, Revision10, FamilyCompletion, ptr[CompletionParams](), ptr[CompletionList](), posParams),
		req(MethodDefinition, h2e, Revision10, FamilyDefinition, ptr[DefinitionParams](), ptr[[]Location](), posParams),
		req(MethodReferences, h2e, Revision10, FamilyReferences, ptr[ReferenceParams](), ptr[[]Location](), posParams),
		req(MethodDocumentSymbol, h2e, Revision10, FamilyDocumentSymbol, ptr[DocumentSymbolParams](), ptr[[]SymbolInformation](), docParams),
		req(MethodWorkspaceSymbol, h2e, Revision10, FamilyWorkspaceSymbol, ptr[WorkspaceSymbolParams](), ptr[[]SymbolInformation](), ""),
		req(MethodFormatting, h2e, Revision10, FamilyFormatting, ptr[DocumentFormattingParams](), ptr[[]TextEdit](), docParams),
		req(MethodCodeAction, h2e, Revision11, FamilyCodeAction, ptr[CodeActionParams](), ptr[[]CodeAction](), docParams),
		req(MethodCodeLens, h2e, Revision11, FamilyCodeLens, ptr[CodeLensParams](), ptr[[]CodeLens](), docParams),
		req(MethodDocumentHighlight, h2e, Revision11, FamilyDocumentHighlight, ptr[DocumentHighlightParams](), ptr[[]DocumentHighlight](), posParams),
		req(MethodDocumentLink, h2e, Revision11, FamilyDocumentLink, ptr[DocumentLinkParams](), ptr[[]DocumentLink](), docParams),
		req(MethodRename, h2e, Revision11, FamilyRename, ptr[RenameParams](), ptr[WorkspaceEdit](), posParams),
		req(MethodSignatureHelp, h2e, Revision11, FamilySignatureHelp, ptr[SignatureHelpParams](), ptr[SignatureHelp](), posParams),
		req(MethodDocumentColor, h2e, Revision11, FamilyColor, ptr[DocumentColorParams](), ptr[[]ColorInformation](), docParams),
		req(MethodTypeDefinition, h2e, Revision11, FamilyTypeDefinition, ptr[DefinitionParams](), ptr[[]Location](), posParams),
		req(MethodImplementation, h2e, Revision11, FamilyImplementation, ptr[DefinitionParams](), ptr[[]Location](), posParams),

		// commands and workspace
		req(MethodExecuteCommand, h2e, Revision10, FamilyExecuteCommand, ptr[ExecuteCommandParams](), ptr[json.RawMessage](),
			`{"type": "object", "required": ["command"], "properties": {"command": {"type": "string", "minLength": 1}}}`),
		note(MethodDidChangeConfiguration, h2e, Revision10, ptr[DidChangeConfigurationParams](), ""),
		note(MethodDidChangeWatchedFiles, h2e, Revision11, ptr[DidChangeWatchedFilesParams](), ""),
		note(MethodDidChangeWorkspaceFolders, h2e, Revision11, ptr[DidChangeWorkspaceFoldersParams](), ""),

		// extension to host
		req(MethodRegister, e2h, Revision10, 0, ptr[RegistrationParams](), ptr[struct{}](),
			`{"type": "object", "required": ["registrations"], "properties": {"registrations": {"type": "array", "items": {"type": "object", "required": ["id", "method"], "properties": {"id": {"type": "string", "minLength": 1}, "method": {"type": "string", "minLength": 1}}}}}}`),
		req(MethodUnregister, e2h, Revision10, 0, ptr[UnregistrationParams](), ptr[struct{}](),
			`{"type": "object", "required": ["unregisterations"]}`),
		note(MethodPublishDiagnostics, e2h, Revision10, ptr[PublishDiagnosticsParams](),
			`{"type": "object", "required": ["uri", "diagnostics"]}`),
		note(MethodLogMessage, e2h, Revision10, ptr[LogMessageParams](), ""),
		note(MethodShowMessage, e2h, Revision10, ptr[ShowMessageParams](), ""),
		req(MethodShowRequest, e2h, Revision10, 0, ptr[ShowMessageRequestParams](), ptr[*MessageActionItem](), ""),
		req(MethodConfiguration, e2h, Revision10, 0, ptr[ConfigurationParams](), ptr[[]json.RawMessage](), ""),
		req(MethodApplyEdit, e2h, Revision11, 0, ptr[ApplyWorkspaceEditParams](), ptr[ApplyWorkspaceEditResult](), ""),
		note(MethodPublishDecorations, e2h, Revision12, ptr[TextDocumentPublishDecorationsParams](), docParams),
		req(MethodShowInput, e2h, Revision12, 0, ptr[ShowInputParams](), ptr[*string](), ""),
		req(MethodConfigUpdate, e2h, Revision12, 0, ptr[ConfigurationUpdateParams](), ptr[struct{}](),
			`{"type": "object", "required": ["path"], "properties": {"path": {"type": "array", "minItems": 1}}}`),
		note(MethodTelemetry, e2h, Revision12, ptr[TelemetryEventParams](), ""),
	}
}
