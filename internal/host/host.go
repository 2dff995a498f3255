package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/exthost/internal/command"
	"github.com/dshills/exthost/internal/contribution"
	"github.com/dshills/exthost/internal/diagnostics"
	"github.com/dshills/exthost/internal/document"
	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/registry"
	"github.com/dshills/exthost/internal/router"
	"github.com/dshills/exthost/internal/watcher"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Defaults for host options.
const (
	DefaultLogRate  = rate.Limit(50)
	DefaultLogBurst = 100
)

// Metrics receives host events. telemetry.Metrics implements it.
type Metrics interface {
	DocumentEvent(kind string)
	Registrations(n int)
	ExtensionTelemetry(ext, name string)
	MessageDropped(ext string)
}

type nopMetrics struct{}

func (nopMetrics) DocumentEvent(string)              {}
func (nopMetrics) Registrations(int)                 {}
func (nopMetrics) ExtensionTelemetry(string, string) {}
func (nopMetrics) MessageDropped(string)             {}

// Host runs one extension session. It is safe for concurrent use.
type Host struct {
	id     string
	logger *zap.Logger
	ui     UI
	stats  Metrics

	clientInfo      protocol.Info
	initTimeout     time.Duration
	shutdownTimeout time.Duration
	logRate         rate.Limit
	logBurst        int
	startLimit      int
	routerOpts      []router.Option
	diagOpts        []diagnostics.Option
	docOpts         []document.Option
	watchDelay      time.Duration

	docs        *document.Store
	reg         *registry.Registry
	router      *router.Router
	commands    *command.Dispatcher
	diags       *diagnostics.Store
	decorations *diagnostics.Decorations
	evaluator   *contribution.Evaluator
	settings    *Settings
	inflight    *inflight

	mu      sync.RWMutex
	exts    map[string]*ext
	order   []string
	folders []protocol.WorkspaceFolder
	watch   *watcher.Watcher
	started bool
	closed  bool
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithUI sets the message presenter. The default logs.
func WithUI(ui UI) Option {
	return func(h *Host) {
		if ui != nil {
			h.ui = ui
		}
	}
}

// WithMetrics sets the host metrics sink.
func WithMetrics(m Metrics) Option {
	return func(h *Host) {
		if m != nil {
			h.stats = m
		}
	}
}

// WithClientInfo names the host in initialize requests.
func WithClientInfo(info protocol.Info) Option {
	return func(h *Host) {
		h.clientInfo = info
	}
}

// WithTimeouts sets the initialize and shutdown timeouts per extension.
func WithTimeouts(initialize, shutdown time.Duration) Option {
	return func(h *Host) {
		if initialize > 0 {
			h.initTimeout = initialize
		}
		if shutdown > 0 {
			h.shutdownTimeout = shutdown
		}
	}
}

// WithLogRate limits window/logMessage and telemetry/event per extension.
func WithLogRate(limit rate.Limit, burst int) Option {
	return func(h *Host) {
		if limit > 0 {
			h.logRate = limit
		}
		if burst > 0 {
			h.logBurst = burst
		}
	}
}

// WithStartConcurrency bounds how many extensions start at once.
func WithStartConcurrency(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.startLimit = n
		}
	}
}

// WithRouterOptions passes options to the feature request router.
func WithRouterOptions(opts ...router.Option) Option {
	return func(h *Host) {
		h.routerOpts = append(h.routerOpts, opts...)
	}
}

// WithDiagnosticsOptions passes options to the diagnostics store.
func WithDiagnosticsOptions(opts ...diagnostics.Option) Option {
	return func(h *Host) {
		h.diagOpts = append(h.diagOpts, opts...)
	}
}

// WithDocumentOptions passes options to the document store.
func WithDocumentOptions(opts ...document.Option) Option {
	return func(h *Host) {
		h.docOpts = append(h.docOpts, opts...)
	}
}

// WithWorkspaceFolders sets the initial workspace folders.
func WithWorkspaceFolders(folders ...protocol.WorkspaceFolder) Option {
	return func(h *Host) {
		h.folders = append(h.folders, folders...)
	}
}

// WithWatchDelay sets the debounce window for watched files.
func WithWatchDelay(d time.Duration) Option {
	return func(h *Host) {
		h.watchDelay = d
	}
}

// New creates a host. settings is the initial settings document and may
// be empty.
func New(settings json.RawMessage, opts ...Option) (*Host, error) {
	h := &Host{
		id:              uuid.NewString(),
		logger:          zap.NewNop(),
		stats:           nopMetrics{},
		clientInfo:      protocol.Info{Name: "exthost"},
		initTimeout:     extension.DefaultInitializeTimeout,
		shutdownTimeout: extension.DefaultShutdownTimeout,
		logRate:         DefaultLogRate,
		logBurst:        DefaultLogBurst,
		startLimit:      8,
		exts:            make(map[string]*ext),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(zap.String("session", h.id))
	if h.ui == nil {
		h.ui = LogUI{Logger: h.logger.Named("ui")}
	}

	var err error
	if h.settings, err = NewSettings(settings); err != nil {
		return nil, err
	}
	if h.evaluator, err = contribution.NewEvaluator(contribution.WithLogger(h.logger)); err != nil {
		return nil, fmt.Errorf("contribution evaluator: %w", err)
	}

	h.docs = document.NewStore(append([]document.Option{document.WithLogger(h.logger)}, h.docOpts...)...)
	h.reg = registry.New(registry.WithLogger(h.logger))
	h.router = router.New(h.reg, h.docs, append([]router.Option{router.WithLogger(h.logger)}, h.routerOpts...)...)
	h.commands = command.New(h.reg, h.remoteCommand, command.WithLogger(h.logger))
	h.diags = diagnostics.NewStore(append([]diagnostics.Option{diagnostics.WithLogger(h.logger)}, h.diagOpts...)...)
	h.decorations = diagnostics.NewDecorations(nil)
	h.inflight = newInflight()
	return h, nil
}

// ID is the session id.
func (h *Host) ID() string { return h.id }

// Documents returns the document store.
func (h *Host) Documents() *document.Store { return h.docs }

// Registry returns the registration registry.
func (h *Host) Registry() *registry.Registry { return h.reg }

// Router returns the feature request router.
func (h *Host) Router() *router.Router { return h.router }

// Diagnostics returns the diagnostics store.
func (h *Host) Diagnostics() *diagnostics.Store { return h.diags }

// Decorations returns the decoration store.
func (h *Host) Decorations() *diagnostics.Decorations { return h.decorations }

// Settings returns the settings document.
func (h *Host) Settings() *Settings { return h.settings }

// Start activates every extension without activation languages. All of
// them are started even if some fail; the first failure is returned.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.started = true
	var eager []*ext
	for _, id := range h.order {
		if e := h.exts[id]; len(e.def.Languages) == 0 {
			eager = append(eager, e)
		}
	}
	h.mu.Unlock()

	h.logger.Info("host starting", zap.Int("extensions", len(h.order)), zap.Int("eager", len(eager)))
	return h.activateAll(ctx, eager)
}

func (h *Host) activateAll(ctx context.Context, exts []*ext) error {
	var g errgroup.Group
	g.SetLimit(h.startLimit)
	for _, e := range exts {
		g.Go(func() error {
			return h.activate(ctx, e)
		})
	}
	return g.Wait()
}

// Close shuts every extension down and clears the session state.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	w := h.watch
	h.watch = nil
	exts := make([]*ext, 0, len(h.order))
	for _, id := range h.order {
		exts = append(exts, h.exts[id])
	}
	h.mu.Unlock()

	var errs []error
	if w != nil {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.inflight.cancelAll()

	var mu sync.Mutex
	var g errgroup.Group
	for _, e := range exts {
		g.Go(func() error {
			if err := h.deactivate(ctx, e); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", e.def.ID, err))
				mu.Unlock()
			}
			// Releases runtimes that were never activated.
			_ = e.def.Runtime.Close()
			return nil
		})
	}
	_ = g.Wait()

	h.reg.Clear()
	h.docs.Clear()
	h.diags.Clear()
	h.decorations.Clear()
	h.evaluator.Close()
	h.stats.Registrations(0)
	h.logger.Info("host closed")
	return errors.Join(errs...)
}
