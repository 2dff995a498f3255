package host

import (
	"context"

	"github.com/dshills/exthost/internal/protocol"
	"go.uber.org/zap"
)

// UI presents extension messages to the user. Embedders provide it; the
// host only forwards.
type UI interface {
	ShowMessage(ctx context.Context, ext string, params protocol.ShowMessageParams) error
	// ShowMessageRequest returns the chosen action or nil when the message
	// was dismissed.
	ShowMessageRequest(ctx context.Context, ext string, params protocol.ShowMessageRequestParams) (*protocol.MessageActionItem, error)
	// ShowInput returns the entered text or nil when input was cancelled.
	ShowInput(ctx context.Context, ext string, params protocol.ShowInputParams) (*string, error)
}

// LogUI logs messages and never selects an action or returns input.
type LogUI struct {
	Logger *zap.Logger
}

func (u LogUI) logger() *zap.Logger {
	if u.Logger == nil {
		return zap.NewNop()
	}
	return u.Logger
}

// ShowMessage implements UI.
func (u LogUI) ShowMessage(_ context.Context, ext string, params protocol.ShowMessageParams) error {
	logAt(u.logger(), params.Type, params.Message, zap.String("extension", ext), zap.String("kind", "show"))
	return nil
}

// ShowMessageRequest implements UI.
func (u LogUI) ShowMessageRequest(_ context.Context, ext string, params protocol.ShowMessageRequestParams) (*protocol.MessageActionItem, error) {
	titles := make([]string, 0, len(params.Actions))
	for _, a := range params.Actions {
		titles = append(titles, a.Title)
	}
	logAt(u.logger(), params.Type, params.Message,
		zap.String("extension", ext), zap.String("kind", "request"), zap.Strings("actions", titles))
	return nil, nil
}

// ShowInput implements UI.
func (u LogUI) ShowInput(_ context.Context, ext string, params protocol.ShowInputParams) (*string, error) {
	u.logger().Info(params.Message, zap.String("extension", ext), zap.String("kind", "input"))
	return nil, nil
}

// logAt logs msg at the zap level matching a protocol message type.
func logAt(logger *zap.Logger, typ protocol.MessageType, msg string, fields ...zap.Field) {
	switch typ {
	case protocol.MessageError:
		logger.Error(msg, fields...)
	case protocol.MessageWarning:
		logger.Warn(msg, fields...)
	case protocol.MessageInfo:
		logger.Info(msg, fields...)
	default:
		logger.Debug(msg, fields...)
	}
}
