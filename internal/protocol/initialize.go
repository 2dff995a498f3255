package protocol

// InitializeParams are the parameters of the initialize request.
type InitializeParams struct {
	ProcessID             int                `json:"processId"`
	ProtocolVersion       string             `json:"protocolVersion,omitempty"`
	ClientInfo            *Info              `json:"clientInfo,omitempty"`
	RootURI               DocumentURI        `json:"rootUri,omitempty"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	InitializationOptions any                `json:"initializationOptions,omitempty"`
	WorkspaceFolders      []WorkspaceFolder  `json:"workspaceFolders,omitempty"`
	Trace                 string             `json:"trace,omitempty"`
}

// InitializeResult is the result of the initialize request.
type InitializeResult struct {
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      *Info              `json:"serverInfo,omitempty"`
	ProtocolVersion string             `json:"protocolVersion,omitempty"`
}

// Info names a protocol endpoint.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializedParams are the parameters of the initialized notification.
type InitializedParams struct{}

// CancelParams are the parameters of $/cancelRequest.
type CancelParams struct {
	ID ID `json:"id"`
}
