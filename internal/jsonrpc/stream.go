package jsonrpc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Stream moves whole frames between two endpoints.
type Stream interface {
	// Read returns the next frame. It returns io.EOF when the peer is gone.
	Read(ctx context.Context) ([]byte, error)
	// Write sends one frame. Concurrent writes are serialized.
	Write(ctx context.Context, data []byte) error
	Close() error
}

// headerStream frames messages with LSP Content-Length headers.
type headerStream struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer

	mu sync.Mutex
}

// NewHeaderStream returns a Stream using Content-Length framing, typically
// over a child process's stdout and stdin. closer may be nil.
func NewHeaderStream(r io.Reader, w io.Writer, closer io.Closer) Stream {
	return &headerStream{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: w,
		closer: closer,
	}
}

// Read reads a single framed message.
func (s *headerStream) Read(ctx context.Context) ([]byte, error) {
	contentLength := -1
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if contentLength < 0 {
				// stray blank line between frames
				continue
			}
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: malformed header %q", ErrFraming, line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "content-length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: bad Content-Length %q", ErrFraming, value)
			}
			contentLength = n
		}
		// Content-Type and other headers are ignored
	}

	if contentLength > MaxMessageSize {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds limit", ErrFraming, contentLength)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(s.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// Write writes a message with its Content-Length header.
func (s *headerStream) Write(ctx context.Context, data []byte) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// Close closes the underlying closer, if any.
func (s *headerStream) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
