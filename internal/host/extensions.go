package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/dshills/exthost/internal/contribution"
	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/lifecycle"
	"github.com/dshills/exthost/internal/manifest"
	"github.com/dshills/exthost/internal/protocol"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Extension describes an extension the host can run.
type Extension struct {
	ID      string
	Runtime extension.Runtime

	// Selector restricts document sync and static registrations.
	Selector protocol.DocumentSelector

	// Languages defers activation until a document of one of these
	// languages is opened. Empty means start with the host.
	Languages []string

	InitializationOptions any
	Contributions         protocol.Contributions
}

// FromManifest builds an Extension from a manifest.
func FromManifest(m *manifest.Manifest, opts manifest.RuntimeOptions) (Extension, error) {
	rt, err := m.NewRuntime(opts)
	if err != nil {
		return Extension{}, err
	}
	return Extension{
		ID:                    m.ID,
		Runtime:               rt,
		Selector:              m.Selector(),
		Languages:             append([]string(nil), m.Activation.Languages...),
		InitializationOptions: m.InitializationOptions,
		Contributions:         m.Contributions,
	}, nil
}

// Status describes an extension at a point in time.
type Status struct {
	ID         string
	Runtime    string
	State      lifecycle.State
	Active     bool
	Families   []protocol.Family
	Server     *protocol.Info
	Violations int
	Err        error
}

// ext is the host's record of one extension.
type ext struct {
	def     Extension
	limiter *rate.Limiter

	// mu serializes activation and deactivation.
	mu      sync.Mutex
	client  *extension.Client
	lastErr error
}

func (e *ext) current() *extension.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client
}

func (e *ext) activatesOn(languageID string) bool {
	for _, lang := range e.def.Languages {
		if lang == languageID || lang == "*" {
			return true
		}
	}
	return false
}

// Add registers an extension. Extensions without activation languages
// added after Start are activated immediately.
func (h *Host) Add(ctx context.Context, def Extension) error {
	if def.ID == "" || def.Runtime == nil {
		return fmt.Errorf("%w: extension needs an id and a runtime", protocol.ErrInvalidParams)
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if _, ok := h.exts[def.ID]; ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateExtension, def.ID)
	}
	e := &ext{def: def, limiter: rate.NewLimiter(h.logRate, h.logBurst)}
	h.exts[def.ID] = e
	h.order = append(h.order, def.ID)
	started := h.started
	h.mu.Unlock()

	h.logger.Debug("extension added", zap.String("extension", def.ID), zap.String("runtime", def.Runtime.Kind()))
	if started && len(def.Languages) == 0 {
		return h.activate(ctx, e)
	}
	if started {
		return h.activateFor(ctx, h.openLanguages(), e)
	}
	return nil
}

// AddManifests adds an extension per manifest.
func (h *Host) AddManifests(ctx context.Context, ms []*manifest.Manifest, opts manifest.RuntimeOptions) error {
	for _, m := range ms {
		def, err := FromManifest(m, opts)
		if err != nil {
			return err
		}
		if err := h.Add(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) lookup(id string) (*ext, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.exts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExtension, id)
	}
	return e, nil
}

// client returns the running client of an extension.
func (h *Host) client(id string) (*extension.Client, error) {
	e, err := h.lookup(id)
	if err != nil {
		return nil, err
	}
	c := e.current()
	if c == nil {
		return nil, protocol.Errorf(protocol.CodeNotInitialized, "extension %s is not active", id)
	}
	return c, nil
}

// active returns the running clients in the order the extensions were
// added.
func (h *Host) active() []*extension.Client {
	h.mu.RLock()
	exts := make([]*ext, 0, len(h.order))
	for _, id := range h.order {
		exts = append(exts, h.exts[id])
	}
	h.mu.RUnlock()

	var out []*extension.Client
	for _, e := range exts {
		if c := e.current(); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Activate starts one extension. It is a no-op for a running extension.
func (h *Host) Activate(ctx context.Context, id string) error {
	e, err := h.lookup(id)
	if err != nil {
		return err
	}
	return h.activate(ctx, e)
}

func (h *Host) activate(ctx context.Context, e *ext) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return nil
	}
	h.mu.RLock()
	closed := h.closed
	folders := append([]protocol.WorkspaceFolder(nil), h.folders...)
	h.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	logger := h.logger.With(zap.String("extension", e.def.ID))
	c := extension.New(e.def.ID, e.def.Runtime,
		extension.WithServices(&services{h: h}),
		extension.WithSelector(e.def.Selector),
		extension.WithLogger(h.logger),
		extension.WithInitializeTimeout(h.initTimeout),
		extension.WithShutdownTimeout(h.shutdownTimeout),
	)
	fail := func(err error) error {
		e.lastErr = err
		logger.Warn("extension failed to activate", zap.Error(err))
		return fmt.Errorf("activate %s: %w", e.def.ID, err)
	}
	if err := c.Start(ctx); err != nil {
		return fail(err)
	}

	info := h.clientInfo
	params := protocol.InitializeParams{
		ProcessID:             os.Getpid(),
		ClientInfo:            &info,
		Capabilities:          protocol.DefaultClientCapabilities(),
		InitializationOptions: e.def.InitializationOptions,
		WorkspaceFolders:      folders,
	}
	if len(folders) > 0 {
		params.RootURI = folders[0].URI
	}
	if _, err := c.Initialize(ctx, params); err != nil {
		_ = c.Close()
		h.release(e.def.ID)
		return fail(err)
	}
	if err := h.reg.RegisterAll(c.StaticRegistrations()); err != nil {
		_ = c.Shutdown(ctx)
		h.release(e.def.ID)
		return fail(err)
	}
	h.stats.Registrations(h.reg.Len())

	h.router.Attach(c)
	e.client = c
	e.lastErr = nil
	c.SyncDocuments(h.docs)
	go h.supervise(e, c)

	neg := c.Negotiated()
	logger.Info("extension active",
		zap.String("runtime", e.def.Runtime.Kind()),
		zap.String("revision", neg.Revision),
		zap.Stringer("sync", neg.SyncKind),
		zap.Int("families", len(neg.Families())),
	)
	return nil
}

// supervise removes an extension's state when its session ends without a
// host-initiated shutdown, as after a crash or a protocol violation.
func (h *Host) supervise(e *ext, c *extension.Client) {
	<-c.Done()
	e.mu.Lock()
	if e.client != c {
		e.mu.Unlock()
		return
	}
	e.client = nil
	e.mu.Unlock()

	_ = c.Close()
	h.logger.Warn("extension session ended", zap.String("extension", e.def.ID), zap.Int("violations", c.Violations()))
	h.release(e.def.ID)
}

// release drops everything an extension contributed to the session.
func (h *Host) release(id string) {
	h.router.Detach(id)
	n := h.reg.RemoveOwner(id)
	h.diags.RemoveSource(id)
	h.decorations.RemoveSource(id)
	h.stats.Registrations(h.reg.Len())
	h.logger.Debug("extension released", zap.String("extension", id), zap.Int("registrations", n))
}

// Deactivate shuts one extension down. It can be activated again.
func (h *Host) Deactivate(ctx context.Context, id string) error {
	e, err := h.lookup(id)
	if err != nil {
		return err
	}
	return h.deactivate(ctx, e)
}

func (h *Host) deactivate(ctx context.Context, e *ext) error {
	e.mu.Lock()
	c := e.client
	e.client = nil
	e.mu.Unlock()
	if c == nil {
		return nil
	}
	err := c.Shutdown(ctx)
	h.release(e.def.ID)
	if errors.Is(err, extension.ErrClosed) {
		err = nil
	}
	return err
}

// Remove shuts one extension down and forgets it, so its id can be added
// again.
func (h *Host) Remove(ctx context.Context, id string) error {
	e, err := h.lookup(id)
	if err != nil {
		return err
	}
	err = h.deactivate(ctx, e)
	_ = e.def.Runtime.Close()

	h.mu.Lock()
	delete(h.exts, id)
	for i, o := range h.order {
		if o == id {
			h.order = append(h.order[:i:i], h.order[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
	h.logger.Debug("extension removed", zap.String("extension", id))
	return err
}

// openLanguages returns the language ids of the open documents.
func (h *Host) openLanguages() map[string]bool {
	langs := make(map[string]bool)
	for _, snap := range h.docs.List() {
		langs[snap.LanguageID] = true
	}
	return langs
}

// activateFor activates the lazy extensions among exts whose activation
// languages intersect langs.
func (h *Host) activateFor(ctx context.Context, langs map[string]bool, exts ...*ext) error {
	var due []*ext
	for _, e := range exts {
		for lang := range langs {
			if e.activatesOn(lang) {
				due = append(due, e)
				break
			}
		}
	}
	if len(due) == 0 {
		return nil
	}
	return h.activateAll(ctx, due)
}

// Extensions reports the status of every extension in the order they were
// added.
func (h *Host) Extensions() []Status {
	h.mu.RLock()
	exts := make([]*ext, 0, len(h.order))
	for _, id := range h.order {
		exts = append(exts, h.exts[id])
	}
	h.mu.RUnlock()

	out := make([]Status, 0, len(exts))
	for _, e := range exts {
		e.mu.Lock()
		st := Status{
			ID:      e.def.ID,
			Runtime: e.def.Runtime.Kind(),
			State:   lifecycle.StateUninitialized,
			Err:     e.lastErr,
		}
		if c := e.client; c != nil {
			neg := c.Negotiated()
			st.Active = true
			st.State = c.State()
			st.Families = neg.Families()
			st.Server = neg.ServerInfo
			st.Violations = c.Violations()
		}
		e.mu.Unlock()
		out = append(out, st)
	}
	return out
}

// Contributions evaluates the contributions of every extension against
// ctx.
func (h *Host) Contributions(ctx contribution.Context) contribution.Result {
	h.mu.RLock()
	sources := make([]contribution.Source, 0, len(h.order))
	for _, id := range h.order {
		e := h.exts[id]
		sources = append(sources, contribution.Source{Extension: e.def.ID, Contributions: e.def.Contributions})
	}
	h.mu.RUnlock()
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Extension < sources[j].Extension })
	return h.evaluator.Evaluate(sources, ctx)
}
