package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/coder/websocket"
)

// wsStream carries one message per websocket text frame.
type wsStream struct {
	conn *websocket.Conn
}

// NewWebSocketStream wraps an established websocket connection.
func NewWebSocketStream(conn *websocket.Conn) Stream {
	conn.SetReadLimit(MaxMessageSize)
	return &wsStream{conn: conn}
}

// DialWebSocket connects to a websocket endpoint and returns a Stream.
func DialWebSocket(ctx context.Context, url string) (Stream, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocketStream(conn), nil
}

func (s *wsStream) Read(ctx context.Context) ([]byte, error) {
	typ, data, err := s.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	if typ != websocket.MessageText {
		return nil, fmt.Errorf("%w: binary websocket frame", ErrFraming)
	}
	return data, nil
}

func (s *wsStream) Write(ctx context.Context, data []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *wsStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
