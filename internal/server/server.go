package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/dshills/exthost/internal/document"
	"github.com/dshills/exthost/internal/jsonrpc"
	"github.com/dshills/exthost/internal/lifecycle"
	"github.com/dshills/exthost/internal/protocol"
	"go.uber.org/zap"
)

// ErrAlreadyServing is returned when Serve is called twice.
var ErrAlreadyServing = errors.New("server: already serving")

type requestFunc func(ctx context.Context, raw json.RawMessage) (any, error)

type notifyFunc func(ctx context.Context, raw json.RawMessage) error

// CommandFunc executes a command contributed by the extension.
type CommandFunc func(ctx context.Context, args []any) (any, error)

// InitializeFunc runs while the initialize request is served. Returning an
// error fails the request and leaves the session uninitialized.
type InitializeFunc func(ctx context.Context, params protocol.InitializeParams) error

// Server is the extension side of a session. Handlers registered before
// Serve determine the capabilities declared at initialize.
type Server struct {
	info     protocol.Info
	logger   *zap.Logger
	session  *lifecycle.Session
	syncKind protocol.TextDocumentSyncKind
	schema   *protocol.Schema
	docs     *document.Store

	mu       sync.RWMutex
	requests map[string]requestFunc
	notifs   map[string]notifyFunc
	commands map[string]CommandFunc
	caps     protocol.ServerCapabilities
	onInit   InitializeFunc
	onReady  func(ctx context.Context)
	params   protocol.InitializeParams
	client   *Client
	serving  bool

	exitOnce sync.Once
	exited   chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSyncKind sets the document sync kind declared at initialize.
func WithSyncKind(kind protocol.TextDocumentSyncKind) Option {
	return func(s *Server) {
		s.syncKind = kind
	}
}

// WithSchema sets the catalog used to validate incoming params.
func WithSchema(schema *protocol.Schema) Option {
	return func(s *Server) {
		if schema != nil {
			s.schema = schema
		}
	}
}

// New creates an extension server named by info.
func New(info protocol.Info, opts ...Option) *Server {
	s := &Server{
		info:     info,
		logger:   zap.NewNop(),
		syncKind: protocol.SyncIncremental,
		schema:   protocol.Default(),
		requests: make(map[string]requestFunc),
		notifs:   make(map[string]notifyFunc),
		commands: make(map[string]CommandFunc),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("extension", info.Name))
	s.session = lifecycle.NewSession(lifecycle.WithStateHook(func(from, to lifecycle.State) {
		s.logger.Debug("session state", zap.Stringer("from", from), zap.Stringer("to", to))
	}))
	// The mirror accepts any increasing version; the host decides how
	// versions advance.
	s.docs = document.NewStore(document.WithSyncKind(protocol.SyncFull), document.WithLogger(s.logger))
	return s
}

// Handle registers a request handler for method. Registering a feature
// method declares its family as supported unless SetCapability already
// declared it.
func Handle[P, R any](s *Server, method string, fn func(ctx context.Context, params P) (R, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[method] = func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params P
		if err := decode(raw, &params); err != nil {
			return nil, err
		}
		return fn(ctx, params)
	}
	if f, ok := protocol.FamilyForMethod(method); ok && !s.caps.Supports(f) {
		s.caps.SetCapability(f, protocol.Enabled())
	}
}

// OnNotification registers a notification handler for method.
func OnNotification[P any](s *Server, method string, fn func(ctx context.Context, params P) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifs[method] = func(ctx context.Context, raw json.RawMessage) error {
		var params P
		if err := decode(raw, &params); err != nil {
			return err
		}
		return fn(ctx, params)
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return protocol.Errorf(protocol.CodeInvalidParams, "%v", err)
	}
	return nil
}

// SetCapability declares family f with explicit options.
func (s *Server) SetCapability(f protocol.Family, c protocol.Capability) {
	s.mu.Lock()
	s.caps.SetCapability(f, c)
	s.mu.Unlock()
}

// Capabilities returns the capabilities the server declares at initialize.
func (s *Server) Capabilities() protocol.ServerCapabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	caps := s.caps
	caps.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: true,
		Change:    s.syncKind,
		Save:      true,
	}
	if len(s.commands) > 0 {
		ids := make([]string, 0, len(s.commands))
		for id := range s.commands {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		caps.ExecuteCommandProvider = protocol.WithOptions(protocol.ExecuteCommandOptions{Commands: ids})
	}
	return caps
}

// Command registers a command the extension executes.
func (s *Server) Command(id string, fn CommandFunc) {
	s.mu.Lock()
	s.commands[id] = fn
	s.mu.Unlock()
}

// OnInitialize sets a hook run while initialize is served.
func (s *Server) OnInitialize(fn InitializeFunc) {
	s.mu.Lock()
	s.onInit = fn
	s.mu.Unlock()
}

// OnInitialized sets a hook run when the host confirms initialization.
func (s *Server) OnInitialized(fn func(ctx context.Context)) {
	s.mu.Lock()
	s.onReady = fn
	s.mu.Unlock()
}

// State returns the session state.
func (s *Server) State() lifecycle.State {
	return s.session.State()
}

// ExitCode returns the exit code of an exited session.
func (s *Server) ExitCode() int {
	return s.session.ExitCode()
}

// InitializeParams returns the parameters the host initialized with.
func (s *Server) InitializeParams() protocol.InitializeParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Document returns the extension's copy of an open document.
func (s *Server) Document(uri protocol.DocumentURI) (document.Snapshot, bool) {
	return s.docs.Snapshot(uri)
}

// Documents lists the open documents.
func (s *Server) Documents() []document.Snapshot {
	return s.docs.List()
}

// Client returns the host services client. It is nil before Serve.
func (s *Server) Client() *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Serve runs the session over stream until the host sends exit, the stream
// ends or ctx is cancelled. A stream that ends cleanly is not an error.
func (s *Server) Serve(ctx context.Context, stream jsonrpc.Stream) error {
	s.mu.Lock()
	if s.serving {
		s.mu.Unlock()
		return ErrAlreadyServing
	}
	s.serving = true
	conn := jsonrpc.NewConn(stream, s.handle, jsonrpc.WithLogger(s.logger))
	s.client = &Client{conn: conn}
	s.mu.Unlock()

	conn.Start(ctx)
	select {
	case <-s.exited:
		conn.Close()
		return nil
	case <-conn.Done():
		if err := conn.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, jsonrpc.ErrClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}
}

// ServeStdio serves the session over the process's standard streams with
// Content-Length framing.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, jsonrpc.NewHeaderStream(os.Stdin, os.Stdout, nil))
}

// Exited is closed once the host sent exit.
func (s *Server) Exited() <-chan struct{} {
	return s.exited
}

func (s *Server) handle(ctx context.Context, method string, raw json.RawMessage) (any, error) {
	isRequest := !jsonrpc.IsNotification(ctx)
	if err := s.session.Admit(method, isRequest); err != nil {
		if errors.Is(err, lifecycle.ErrDropped) {
			s.logger.Debug("notification dropped", zap.String("method", method), zap.Stringer("state", s.session.State()))
			return nil, nil
		}
		if lifecycle.IsViolation(err) {
			s.logger.Warn("protocol violation", zap.String("method", method), zap.Error(err))
		}
		return nil, err
	}
	if err := s.schema.Validate(method, raw); err != nil {
		if method == protocol.MethodInitialize {
			s.session.Initialized(err)
		}
		if isRequest {
			return nil, err
		}
		s.logger.Debug("invalid notification", zap.String("method", method), zap.Error(err))
		return nil, nil
	}

	switch method {
	case protocol.MethodInitialize:
		return s.initialize(ctx, raw)
	case protocol.MethodInitialized:
		s.mu.RLock()
		fn := s.onReady
		s.mu.RUnlock()
		if fn != nil {
			fn(ctx)
		}
		return nil, nil
	case protocol.MethodShutdown:
		return nil, nil
	case protocol.MethodExit:
		s.exitOnce.Do(func() { close(s.exited) })
		return nil, nil
	case protocol.MethodExecuteCommand:
		return s.executeCommand(ctx, raw)
	}

	if err := s.mirror(method, raw); err != nil {
		s.logger.Warn("document sync failed", zap.String("method", method), zap.Error(err))
	}

	s.mu.RLock()
	req, hasReq := s.requests[method]
	note, hasNote := s.notifs[method]
	s.mu.RUnlock()

	if isRequest {
		if !hasReq {
			return nil, protocol.Errorf(protocol.CodeMethodNotFound, "method not found: %s", method)
		}
		return req(ctx, raw)
	}
	if hasNote {
		if err := note(ctx, raw); err != nil {
			s.logger.Warn("notification handler failed", zap.String("method", method), zap.Error(err))
		}
	}
	return nil, nil
}

func (s *Server) initialize(ctx context.Context, raw json.RawMessage) (any, error) {
	var params protocol.InitializeParams
	if err := decode(raw, &params); err != nil {
		s.session.Initialized(err)
		return nil, err
	}
	s.mu.Lock()
	s.params = params
	fn := s.onInit
	s.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, params); err != nil {
			s.session.Initialized(err)
			return nil, err
		}
	}
	result := protocol.InitializeResult{
		Capabilities:    s.Capabilities(),
		ServerInfo:      &s.info,
		ProtocolVersion: protocol.CurrentRevision,
	}
	s.session.Initialized(nil)
	s.logger.Info("initialized",
		zap.String("revision", protocol.MinRevision(params.ProtocolVersion, protocol.CurrentRevision)),
		zap.Int("families", len(result.Capabilities.SupportedFamilies())),
	)
	return result, nil
}

func (s *Server) executeCommand(ctx context.Context, raw json.RawMessage) (any, error) {
	var params protocol.ExecuteCommandParams
	if err := decode(raw, &params); err != nil {
		return nil, err
	}
	s.mu.RLock()
	fn, ok := s.commands[params.Command]
	s.mu.RUnlock()
	if !ok {
		return nil, protocol.Errorf(protocol.CodeCommandNotFound, "command not found: %s", params.Command)
	}
	return fn(ctx, params.Arguments)
}

// mirror keeps the extension's document copies in step with the host.
func (s *Server) mirror(method string, raw json.RawMessage) error {
	switch method {
	case protocol.MethodDidOpen:
		var p protocol.DidOpenTextDocumentParams
		if err := decode(raw, &p); err != nil {
			return err
		}
		_, err := s.docs.Open(p.TextDocument)
		return err
	case protocol.MethodDidChange:
		var p protocol.DidChangeTextDocumentParams
		if err := decode(raw, &p); err != nil {
			return err
		}
		_, err := s.docs.Change(p.TextDocument, p.ContentChanges)
		return err
	case protocol.MethodDidSave:
		var p protocol.DidSaveTextDocumentParams
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.docs.Save(p.TextDocument.URI, p.Text)
	case protocol.MethodDidClose:
		var p protocol.DidCloseTextDocumentParams
		if err := decode(raw, &p); err != nil {
			return err
		}
		return s.docs.Close(p.TextDocument.URI)
	}
	return nil
}
