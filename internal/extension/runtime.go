package extension

import (
	"context"
	"errors"
	"sync"

	"github.com/dshills/exthost/internal/jsonrpc"
	"github.com/dshills/exthost/internal/server"
)

// Runtime starts an extension and connects the host to it.
type Runtime interface {
	// Kind names the runtime in logs.
	Kind() string

	// Open starts the extension and returns the stream connected to it. The
	// extension must outlive ctx; ctx only bounds the start itself.
	Open(ctx context.Context) (jsonrpc.Stream, error)

	// Close releases whatever Open acquired. It is safe to call more than
	// once and after a failed Open.
	Close() error
}

// WebSocket connects to an extension that is already listening.
type WebSocket struct {
	URL string
}

// Kind implements Runtime.
func (w *WebSocket) Kind() string { return "websocket" }

// Open dials the extension.
func (w *WebSocket) Open(ctx context.Context) (jsonrpc.Stream, error) {
	return jsonrpc.DialWebSocket(ctx, w.URL)
}

// Close is a no-op; the connection owns the socket.
func (w *WebSocket) Close() error { return nil }

// Attached is an extension that connected to the host, such as a websocket
// peer accepted by the HTTP endpoint. Its stream can be opened once.
type Attached struct {
	mu     sync.Mutex
	stream jsonrpc.Stream
	opened bool
	closed chan struct{}
	once   sync.Once
}

// NewAttached wraps an established stream.
func NewAttached(stream jsonrpc.Stream) *Attached {
	return &Attached{stream: stream, closed: make(chan struct{})}
}

// Kind implements Runtime.
func (a *Attached) Kind() string { return "attached" }

// Open returns the stream.
func (a *Attached) Open(context.Context) (jsonrpc.Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return nil, ErrAlreadyStarted
	}
	a.opened = true
	return a.stream, nil
}

// Close closes the stream.
func (a *Attached) Close() error {
	var err error
	a.once.Do(func() {
		err = a.stream.Close()
		close(a.closed)
	})
	return err
}

// Closed is closed once Close has run.
func (a *Attached) Closed() <-chan struct{} { return a.closed }

// InProcess serves a Go extension in the host process over an in-memory
// pipe. The extension still only sees protocol messages.
type InProcess struct {
	Server *server.Server

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewInProcess wraps srv.
func NewInProcess(srv *server.Server) *InProcess {
	return &InProcess{Server: srv}
}

// Kind implements Runtime.
func (p *InProcess) Kind() string { return "inprocess" }

// Open starts serving the extension.
func (p *InProcess) Open(ctx context.Context) (jsonrpc.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return nil, ErrAlreadyStarted
	}
	host, ext := jsonrpc.Pipe()
	serveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		err := p.Server.Serve(serveCtx, ext)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
	}()
	return host, nil
}

// Close stops the extension and waits for it to return.
func (p *InProcess) Close() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
