package protocol

// DocumentColorParams are the parameters of textDocument/documentColor.
type DocumentColorParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// Color is an RGBA color with components in [0, 1].
type Color struct {
	Red   float64 `json:"red"`
	Green float64 `json:"green"`
	Blue  float64 `json:"blue"`
	Alpha float64 `json:"alpha"`
}

// ColorInformation is a color found in a document.
type ColorInformation struct {
	Range Range `json:"range"`
	Color Color `json:"color"`
}
