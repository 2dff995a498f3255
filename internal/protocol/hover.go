package protocol

// HoverParams are the parameters of textDocument/hover.
type HoverParams struct {
	TextDocumentPositionParams
}

// Hover is the result of a hover request.
type Hover struct {
	Contents MarkupContent `json:"contents"`
	Range    *Range        `json:"range,omitempty"`
}

// IsEmpty reports a hover with no content.
func (h *Hover) IsEmpty() bool {
	return h == nil || h.Contents.Value == ""
}
