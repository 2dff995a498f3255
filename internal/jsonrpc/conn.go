package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dshills/exthost/internal/protocol"
	"go.uber.org/zap"
)

// Handler serves incoming requests and notifications. For notifications
// the result is ignored. Returning a *protocol.Error preserves its code on
// the wire.
type Handler func(ctx context.Context, method string, params json.RawMessage) (any, error)

// MethodNotFound is a Handler that rejects everything.
func MethodNotFound(ctx context.Context, method string, params json.RawMessage) (any, error) {
	return nil, protocol.Errorf(protocol.CodeMethodNotFound, "method not found: %s", method)
}

// Conn is a bidirectional JSON-RPC 2.0 connection.
//
// Incoming messages are dispatched in arrival order by a single worker:
// notifications run to completion before the next message is looked at,
// responses are handed to their waiting Call, and requests are started on
// their own goroutine. A request, and a Call returning a reply, therefore
// always observe the effects of the notifications the peer sent before it.
//
// A notification handler may itself Call the peer. Replies to such calls
// bypass the queue, since the worker is busy running that handler.
type Conn struct {
	stream  Stream
	handler Handler
	logger  *zap.Logger

	nextID atomic.Int64

	mu       sync.Mutex
	pending  map[protocol.ID]*call
	inflight map[protocol.ID]context.CancelFunc

	queue chan *protocol.Message

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// call is a request waiting for its response.
type call struct {
	ch chan *protocol.Message

	// inline calls were made by a notification handler and are resolved
	// by the reader instead of the dispatch worker.
	inline bool
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the connection logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithQueueSize sets how many incoming messages may wait for dispatch.
func WithQueueSize(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.queue = make(chan *protocol.Message, n)
		}
	}
}

// NewConn creates a connection over stream. A nil handler rejects every
// incoming method.
func NewConn(stream Stream, handler Handler, opts ...Option) *Conn {
	if handler == nil {
		handler = MethodNotFound
	}
	c := &Conn{
		stream:   stream,
		handler:  handler,
		logger:   zap.NewNop(),
		pending:  make(map[protocol.ID]*call),
		inflight: make(map[protocol.ID]context.CancelFunc),
		queue:    make(chan *protocol.Message, 256),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins reading and dispatching messages. The connection closes
// when ctx is cancelled or the stream ends.
func (c *Conn) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		c.readLoop(ctx)
	}()
	go c.dispatchLoop(ctx)
	go func() {
		select {
		case <-ctx.Done():
			c.closeWith(ctx.Err())
		case <-c.done:
			cancel()
		}
	}()
}

// Done is closed when the connection has shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the reason the connection closed, or nil while open. A clean
// end of stream is reported as io.EOF.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close shuts the connection down and fails every pending call.
func (c *Conn) Close() error {
	c.closeWith(ErrClosed)
	return nil
}

func (c *Conn) closeWith(reason error) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.err = reason
		if err := c.stream.Close(); err != nil {
			c.logger.Debug("close stream", zap.Error(err))
		}

		c.mu.Lock()
		for id, cancel := range c.inflight {
			cancel()
			delete(c.inflight, id)
		}
		c.mu.Unlock()

		close(c.done)
	})
}

// Call sends a request and waits for its response. If ctx ends first a
// $/cancelRequest is sent to the peer, any late response is dropped, and
// the returned error matches both protocol.ErrRequestCancelled and the
// context error.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	if c.closed.Load() {
		return ErrClosed
	}

	id := protocol.NewNumberID(c.nextID.Add(1))
	msg, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return err
	}

	pc := &call{ch: make(chan *protocol.Message, 1), inline: c.dispatching(ctx)}
	c.mu.Lock()
	c.pending[id] = pc
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.cancelRemote(id)
		return fmt.Errorf("%s: %w: %w", method, protocol.ErrRequestCancelled, ctx.Err())
	case <-c.done:
		return ErrClosed
	case resp := <-pc.ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 && string(resp.Result) != "null" {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		return nil
	}
}

// Notify sends a notification.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	msg, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}
	return c.send(ctx, msg)
}

func (c *Conn) cancelRemote(id protocol.ID) {
	if c.closed.Load() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Notify(ctx, protocol.MethodCancel, protocol.CancelParams{ID: id}); err != nil {
		c.logger.Debug("send cancel", zap.Stringer("id", id), zap.Error(err))
	}
}

func (c *Conn) send(ctx context.Context, msg *protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.stream.Write(ctx, data)
}

func (c *Conn) readLoop(ctx context.Context) {
	for {
		data, err := c.stream.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || c.closed.Load() {
				c.closeWith(io.EOF)
				return
			}
			if errors.Is(err, ErrFraming) {
				c.logger.Warn("dropping unreadable frame", zap.Error(err))
				continue
			}
			c.closeWith(err)
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.rejectFrame(ctx, data, err)
			continue
		}

		if msg.IsResponse() && c.resolvesInline(msg) {
			c.handleResponse(msg)
			continue
		}
		if msg.Method == protocol.MethodCancel {
			c.handleCancel(msg)
			continue
		}

		select {
		case c.queue <- msg:
		case <-c.done:
			return
		}
	}
}

// rejectFrame answers a malformed request with an error response when the
// frame carried an id, and logs it otherwise.
func (c *Conn) rejectFrame(ctx context.Context, data []byte, err error) {
	id := protocol.PeekID(data)
	c.logger.Warn("malformed message", zap.Error(err))
	if id == nil {
		return
	}
	resp, _ := protocol.NewResponse(*id, nil, err)
	if sendErr := c.send(ctx, resp); sendErr != nil {
		c.logger.Debug("send error response", zap.Error(sendErr))
	}
}

// dispatching reports whether ctx belongs to a notification handler run
// by this connection's dispatch worker.
func (c *Conn) dispatching(ctx context.Context) bool {
	owner, _ := ctx.Value(dispatchKey{}).(*Conn)
	return owner == c
}

func (c *Conn) resolvesInline(msg *protocol.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pc, ok := c.pending[*msg.ID]
	return ok && pc.inline
}

func (c *Conn) handleResponse(msg *protocol.Message) {
	c.mu.Lock()
	pc, ok := c.pending[*msg.ID]
	if ok {
		delete(c.pending, *msg.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("discarding late response", zap.Stringer("id", msg.ID))
		return
	}
	select {
	case pc.ch <- msg:
	default:
	}
}

func (c *Conn) handleCancel(msg *protocol.Message) {
	var params protocol.CancelParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		c.logger.Debug("bad cancel params", zap.Error(err))
		return
	}
	c.mu.Lock()
	cancel, ok := c.inflight[params.ID]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

func (c *Conn) dispatchLoop(ctx context.Context) {
	noteCtx := context.WithValue(ctx, dispatchKey{}, c)
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.queue:
			if msg.IsResponse() {
				c.handleResponse(msg)
				continue
			}
			if msg.IsNotification() {
				if _, err := c.invoke(noteCtx, msg); err != nil {
					c.logger.Debug("notification failed", zap.String("method", msg.Method), zap.Error(err))
				}
				continue
			}
			c.startRequest(ctx, msg)
		}
	}
}

func (c *Conn) startRequest(ctx context.Context, msg *protocol.Message) {
	id := *msg.ID
	reqCtx, cancel := context.WithCancel(context.WithValue(ctx, requestIDKey{}, id))

	c.mu.Lock()
	c.inflight[id] = cancel
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.inflight, id)
			c.mu.Unlock()
			cancel()
		}()

		result, err := c.invoke(reqCtx, msg)
		if err == nil && reqCtx.Err() != nil {
			err = protocol.ErrRequestCancelled
		}
		resp, buildErr := protocol.NewResponse(id, result, err)
		if buildErr != nil {
			resp, _ = protocol.NewResponse(id, nil, buildErr)
		}
		if c.closed.Load() {
			return
		}
		if err := c.send(context.Background(), resp); err != nil {
			c.logger.Debug("send response", zap.String("method", msg.Method), zap.Error(err))
		}
	}()
}

// invoke runs the handler, turning panics into internal errors.
func (c *Conn) invoke(ctx context.Context, msg *protocol.Message) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panic", zap.String("method", msg.Method), zap.Any("panic", r))
			err = protocol.Errorf(protocol.CodeInternalError, "handler panic: %v", r)
		}
	}()
	return c.handler(ctx, msg.Method, msg.Params)
}
