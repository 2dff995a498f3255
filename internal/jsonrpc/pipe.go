package jsonrpc

import (
	"context"
	"io"
	"sync"
)

// pipeStream is one end of an in-memory channel pair.
type pipeStream struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// Pipe returns two connected in-memory streams. Frames written to one are
// read from the other in order. Closing either end closes both.
func Pipe() (Stream, Stream) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	done := make(chan struct{})
	once := &sync.Once{}
	a := &pipeStream{in: ba, out: ab, done: done, once: once}
	b := &pipeStream{in: ab, out: ba, done: done, once: once}
	return a, b
}

func (p *pipeStream) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-p.in:
		return data, nil
	default:
	}
	select {
	case data := <-p.in:
		return data, nil
	case <-p.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeStream) Write(ctx context.Context, data []byte) error {
	buf := append([]byte(nil), data...)
	select {
	case <-p.done:
		return io.ErrClosedPipe
	default:
	}
	select {
	case p.out <- buf:
		return nil
	case <-p.done:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeStream) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
