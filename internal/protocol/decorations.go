package protocol

// TextDocumentPublishDecorationsParams are the parameters of
// textDocument/publishDecorations. A publish replaces the previous set of
// decorations the extension sent for the document.
type TextDocumentPublishDecorationsParams struct {
	TextDocument TextDocumentIdentifier   `json:"textDocument"`
	Decorations  []TextDocumentDecoration `json:"decorations"`
}

// TextDocumentDecoration styles a range of a document.
type TextDocumentDecoration struct {
	Range           Range                              `json:"range"`
	IsWholeLine     bool                               `json:"isWholeLine,omitempty"`
	BackgroundColor string                             `json:"backgroundColor,omitempty"`
	Border          string                             `json:"border,omitempty"`
	BorderColor     string                             `json:"borderColor,omitempty"`
	After           *DecorationAttachmentRenderOptions `json:"after,omitempty"`
}

// DecorationAttachmentRenderOptions render content after a decorated range.
type DecorationAttachmentRenderOptions struct {
	ContentText     string `json:"contentText,omitempty"`
	HoverMessage    string `json:"hoverMessage,omitempty"`
	LinkURL         string `json:"linkURL,omitempty"`
	Color           string `json:"color,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
}
