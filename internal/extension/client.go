package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/exthost/internal/document"
	"github.com/dshills/exthost/internal/jsonrpc"
	"github.com/dshills/exthost/internal/lifecycle"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/registry"
	"github.com/dshills/exthost/internal/result"
	"go.uber.org/zap"
)

// Default handshake timeouts.
const (
	DefaultInitializeTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
)

// Client is the host side of one extension session.
type Client struct {
	id       string
	runtime  Runtime
	services Services
	selector protocol.DocumentSelector
	schema   *protocol.Schema
	logger   *zap.Logger

	initTimeout     time.Duration
	shutdownTimeout time.Duration

	mu         sync.RWMutex
	conn       *jsonrpc.Conn
	cancel     context.CancelFunc
	state      lifecycle.State
	handshake  result.Result[lifecycle.Negotiated]
	sub        *document.Subscription
	closeOnce  sync.Once
	violations int
}

// Option configures a Client.
type Option func(*Client)

// WithServices sets the host services the extension can call.
func WithServices(svc Services) Option {
	return func(c *Client) {
		if svc != nil {
			c.services = svc
		}
	}
}

// WithSelector limits the documents synchronized to the extension and is
// the selector attached to its static registrations.
func WithSelector(sel protocol.DocumentSelector) Option {
	return func(c *Client) {
		c.selector = sel
	}
}

// WithSchema sets the catalog used to validate messages from the
// extension.
func WithSchema(schema *protocol.Schema) Option {
	return func(c *Client) {
		if schema != nil {
			c.schema = schema
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithInitializeTimeout bounds the initialize request.
func WithInitializeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.initTimeout = d
		}
	}
}

// WithShutdownTimeout bounds the shutdown request and the wait for the
// extension to go away after exit.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// New creates a client for the extension id running in rt.
func New(id string, rt Runtime, opts ...Option) *Client {
	c := &Client{
		id:              id,
		runtime:         rt,
		services:        NopServices{},
		schema:          protocol.Default(),
		logger:          zap.NewNop(),
		initTimeout:     DefaultInitializeTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("extension", id), zap.String("runtime", rt.Kind()))
	return c
}

// ID returns the extension id.
func (c *Client) ID() string { return c.id }

// Selector returns the extension's document selector.
func (c *Client) Selector() protocol.DocumentSelector { return c.selector }

// State returns the session state as seen by the host.
func (c *Client) State() lifecycle.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Handshake returns the outcome of initialize: pending until the response
// arrives, then ready or failed.
func (c *Client) Handshake() result.Result[lifecycle.Negotiated] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handshake
}

// Negotiated returns the negotiated feature set, or the zero value before a
// successful handshake.
func (c *Client) Negotiated() lifecycle.Negotiated {
	return c.Handshake().Or(lifecycle.Negotiated{})
}

// Start opens the runtime and starts the connection.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return ErrAlreadyStarted
	}
	stream, err := c.runtime.Open(ctx)
	if err != nil {
		c.runtime.Close()
		return fmt.Errorf("open %s runtime: %w", c.runtime.Kind(), err)
	}
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.conn = jsonrpc.NewConn(stream, c.serve, jsonrpc.WithLogger(c.logger))
	c.conn.Start(connCtx)
	c.logger.Debug("extension started")
	return nil
}

// Initialize runs the handshake. On success the initialized notification
// has been sent and the session is ready. A failed handshake can be
// retried.
func (c *Client) Initialize(ctx context.Context, params protocol.InitializeParams) (lifecycle.Negotiated, error) {
	c.mu.Lock()
	conn := c.conn
	switch {
	case conn == nil:
		c.mu.Unlock()
		return lifecycle.Negotiated{}, ErrNotStarted
	case c.state != lifecycle.StateUninitialized:
		c.mu.Unlock()
		return lifecycle.Negotiated{}, protocol.ErrAlreadyInitialized
	}
	c.state = lifecycle.StateInitializing
	c.handshake = result.Pending[lifecycle.Negotiated]()
	c.mu.Unlock()

	if params.ProtocolVersion == "" {
		params.ProtocolVersion = protocol.CurrentRevision
	}

	callCtx, cancel := context.WithTimeout(ctx, c.initTimeout)
	defer cancel()

	var res protocol.InitializeResult
	err := conn.Call(callCtx, protocol.MethodInitialize, params, &res)
	if err != nil {
		c.mu.Lock()
		c.state = lifecycle.StateUninitialized
		c.handshake = result.Failed[lifecycle.Negotiated](err)
		c.mu.Unlock()
		if errors.Is(err, protocol.ErrAlreadyInitialized) {
			c.violation(protocol.MethodInitialize, err)
		}
		return lifecycle.Negotiated{}, fmt.Errorf("initialize %s: %w", c.id, err)
	}

	neg := lifecycle.Negotiate(params, res)
	c.mu.Lock()
	c.state = lifecycle.StateInitialized
	c.handshake = result.Ready(neg)
	c.mu.Unlock()

	if err := conn.Notify(ctx, protocol.MethodInitialized, protocol.InitializedParams{}); err != nil {
		return neg, fmt.Errorf("initialized %s: %w", c.id, err)
	}
	c.setState(lifecycle.StateReady)

	c.logger.Info("extension initialized",
		zap.String("name", neg.ServerName()),
		zap.String("revision", neg.Revision),
		zap.Stringer("sync", neg.SyncKind),
		zap.Int("families", len(neg.Families())),
	)
	return neg, nil
}

// StaticRegistrations converts the negotiated capabilities into
// registrations owned by the extension.
func (c *Client) StaticRegistrations() []registry.Registration {
	neg, err := c.Handshake().Get()
	if err != nil {
		return nil
	}
	return registry.FromCapabilities(c.id, neg.Capabilities, c.selector)
}

// Call sends a request to the extension.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	conn, err := c.ready()
	if err != nil {
		return err
	}
	return conn.Call(ctx, method, params, result)
}

// Notify sends a notification to the extension.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	conn, err := c.ready()
	if err != nil {
		return err
	}
	return conn.Notify(ctx, method, params)
}

func (c *Client) ready() (*jsonrpc.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.state {
	case lifecycle.StateInitialized, lifecycle.StateReady:
		return c.conn, nil
	case lifecycle.StateShuttingDown, lifecycle.StateExited:
		return nil, ErrClosed
	default:
		return nil, protocol.ErrNotInitialized
	}
}

// SyncDocuments subscribes the extension to store. Documents already open
// are replayed as didOpen. It returns nil when the extension asked for no
// document synchronization.
func (c *Client) SyncDocuments(store *document.Store) *document.Subscription {
	neg := c.Negotiated()
	if !neg.WantsDocuments() {
		return nil
	}
	cfg := document.SubscriberConfig{
		Name:      c.id,
		SyncKind:  neg.SyncKind,
		OpenClose: neg.OpenClose,
	}
	if sync := neg.Capabilities.TextDocumentSync; sync != nil {
		cfg.Save = sync.Save
	}
	if sel := c.selector; len(sel) > 0 {
		cfg.Filter = func(s document.Snapshot) bool {
			return registry.MatchSelector(sel, registry.Document{URI: s.URI, LanguageID: s.LanguageID})
		}
	}
	sub := store.Subscribe(cfg, c.Notify)

	c.mu.Lock()
	old := c.sub
	c.sub = sub
	c.mu.Unlock()
	if old != nil {
		old.Unsubscribe()
	}
	return sub
}

// Shutdown ends the session politely: pending document events are flushed,
// then shutdown and exit are sent and the runtime is released.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	conn, sub := c.conn, c.sub
	c.sub = nil
	c.mu.Unlock()

	if conn == nil {
		return ErrNotStarted
	}

	ctx, cancel := context.WithTimeout(ctx, c.shutdownTimeout)
	defer cancel()

	var errs []error
	if sub != nil {
		if err := sub.Flush(ctx); err != nil && !errors.Is(err, document.ErrUnsubscribed) {
			errs = append(errs, fmt.Errorf("flush documents: %w", err))
		}
		sub.Unsubscribe()
	}

	c.mu.Lock()
	state := c.state
	if state == lifecycle.StateInitialized || state == lifecycle.StateReady {
		c.state = lifecycle.StateShuttingDown
	}
	c.mu.Unlock()

	if state == lifecycle.StateInitialized || state == lifecycle.StateReady {
		if err := conn.Call(ctx, protocol.MethodShutdown, nil, nil); err != nil {
			errs = append(errs, fmt.Errorf("shutdown: %w", err))
		}
		if err := conn.Notify(ctx, protocol.MethodExit, nil); err != nil && !errors.Is(err, jsonrpc.ErrClosed) {
			errs = append(errs, fmt.Errorf("exit: %w", err))
		}
		select {
		case <-conn.Done():
		case <-ctx.Done():
		}
	}
	if err := c.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close tears the session down without the shutdown handshake.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn, sub, cancel := c.conn, c.sub, c.cancel
		c.state = lifecycle.StateExited
		c.sub = nil
		c.mu.Unlock()

		if sub != nil {
			sub.Unsubscribe()
		}
		if conn != nil {
			conn.Close()
		}
		if cancel != nil {
			cancel()
		}
		err = c.runtime.Close()
		c.logger.Debug("extension closed")
	})
	return err
}

// Done is closed when the connection to the extension has ended.
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Done()
}

// Violations counts protocol violations seen on this session.
func (c *Client) Violations() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.violations
}

func (c *Client) setState(s lifecycle.State) {
	c.mu.Lock()
	if c.state != lifecycle.StateShuttingDown && c.state != lifecycle.StateExited {
		c.state = s
	}
	c.mu.Unlock()
}

// violation logs a protocol violation and closes the session.
func (c *Client) violation(method string, err error) {
	c.mu.Lock()
	c.violations++
	c.mu.Unlock()
	c.logger.Warn("protocol violation, closing session", zap.String("method", method), zap.Error(err))
	go c.Close()
}

// serve handles messages the extension sends to the host.
func (c *Client) serve(ctx context.Context, method string, raw json.RawMessage) (any, error) {
	state := c.State()
	if state == lifecycle.StateShuttingDown || state == lifecycle.StateExited {
		err := protocol.Errorf(protocol.CodeInvalidRequest, "%s after shutdown", method)
		c.violation(method, err)
		return nil, err
	}
	if err := c.schema.Validate(method, raw); err != nil {
		if jsonrpc.IsNotification(ctx) {
			c.logger.Debug("invalid notification", zap.String("method", method), zap.Error(err))
			return nil, nil
		}
		return nil, err
	}
	res, err := dispatch(ctx, c.services, c.id, method, raw)
	if err != nil && jsonrpc.IsNotification(ctx) {
		c.logger.Warn("notification failed", zap.String("method", method), zap.Error(err))
		return nil, nil
	}
	return res, err
}
