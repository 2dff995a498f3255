package protocol

// Lifecycle methods.
const (
	MethodInitialize   = "initialize"
	MethodInitialized  = "initialized"
	MethodShutdown     = "shutdown"
	MethodExit         = "exit"
	MethodCancel       = "$/cancelRequest"
	MethodRegister     = "client/registerCapability"
	MethodUnregister   = "client/unregisterCapability"
	MethodTelemetry    = "telemetry/event"
	MethodLogMessage   = "window/logMessage"
	MethodShowMessage  = "window/showMessage"
	MethodShowRequest  = "window/showMessageRequest"
	MethodShowInput    = "window/showInput"
	MethodConfigUpdate = "configuration/update"
)

// Document synchronization methods.
const (
	MethodDidOpen            = "textDocument/didOpen"
	MethodDidChange          = "textDocument/didChange"
	MethodDidClose           = "textDocument/didClose"
	MethodDidSave            = "textDocument/didSave"
	MethodPublishDiagnostics = "textDocument/publishDiagnostics"
	MethodPublishDecorations = "textDocument/publishDecorations"
)

// Feature request methods.
const (
	MethodHover             = "textDocument/hover"
	MethodCompletion        = "textDocument/completion"
	MethodDefinition        = "textDocument/definition"
	MethodReferences        = "textDocument/references"
	MethodCodeAction        = "textDocument/codeAction"
	MethodCodeLens          = "textDocument/codeLens"
	MethodDocumentHighlight = "textDocument/documentHighlight"
	MethodDocumentLink      = "textDocument/documentLink"
	MethodRename            = "textDocument/rename"
	MethodSignatureHelp     = "textDocument/signatureHelp"
	MethodDocumentSymbol    = "textDocument/documentSymbol"
	MethodFormatting        = "textDocument/formatting"
	MethodDocumentColor     = "textDocument/documentColor"
	MethodTypeDefinition    = "textDocument/typeDefinition"
	MethodImplementation    = "textDocument/implementation"
	MethodWorkspaceSymbol   = "workspace/symbol"
)

// Workspace methods.
const (
	MethodExecuteCommand            = "workspace/executeCommand"
	MethodApplyEdit                 = "workspace/applyEdit"
	MethodConfiguration             = "workspace/configuration"
	MethodDidChangeConfiguration    = "workspace/didChangeConfiguration"
	MethodDidChangeWatchedFiles     = "workspace/didChangeWatchedFiles"
	MethodDidChangeWorkspaceFolders = "workspace/didChangeWorkspaceFolders"
)
