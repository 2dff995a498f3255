package protocol

// MessageType is the severity of a window message.
type MessageType int

const (
	MessageError   MessageType = 1
	MessageWarning MessageType = 2
	MessageInfo    MessageType = 3
	MessageLog     MessageType = 4
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageError:
		return "error"
	case MessageWarning:
		return "warning"
	case MessageInfo:
		return "info"
	case MessageLog:
		return "log"
	default:
		return "unknown"
	}
}

// ShowMessageParams are the parameters of window/showMessage.
type ShowMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// LogMessageParams are the parameters of window/logMessage.
type LogMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// ShowMessageRequestParams are the parameters of window/showMessageRequest.
type ShowMessageRequestParams struct {
	Type    MessageType         `json:"type"`
	Message string              `json:"message"`
	Actions []MessageActionItem `json:"actions,omitempty"`
}

// MessageActionItem is a choice offered by window/showMessageRequest.
// A nil result means the user dismissed the message.
type MessageActionItem struct {
	Title string `json:"title"`
}

// ShowInputParams are the parameters of window/showInput. The result is
// the entered string, or null when the user cancelled.
type ShowInputParams struct {
	Message      string `json:"message"`
	DefaultValue string `json:"defaultValue,omitempty"`
}
