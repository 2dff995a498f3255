package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dshills/exthost/internal/document"
	"github.com/dshills/exthost/internal/lifecycle"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Defaults.
const (
	DefaultTimeout        = 5 * time.Second
	DefaultMaxConcurrency = 8
)

// ErrProviderTimeout is recorded when a provider does not answer within the
// per-provider timeout.
var ErrProviderTimeout = errors.New("router: provider timed out")

// Provider is an extension the router can send requests to.
type Provider interface {
	// ID is the extension id, matching the owner of its registrations.
	ID() string
	// Negotiated returns the capabilities fixed at initialize.
	Negotiated() lifecycle.Negotiated
	// Call sends a request and decodes the reply into result.
	Call(ctx context.Context, method string, params, result any) error
}

// Observer receives the outcome of routed requests.
type Observer interface {
	ProviderDone(method, provider string, elapsed time.Duration, err error)
	RequestDone(method string, providers int, elapsed time.Duration, err error)
}

// Response is the merged result of a routed request.
type Response[T any] struct {
	Result T
	// Errors holds one entry per provider that failed or timed out.
	Errors []*protocol.ProviderError
	// Providers is the number of providers the request was sent to.
	Providers int
}

// Router fans feature requests out to providers. It is safe for
// concurrent use.
type Router struct {
	reg            *registry.Registry
	docs           *document.Store
	timeout        time.Duration
	maxConcurrency int
	logger         *zap.Logger
	tracer         trace.Tracer
	observer       Observer

	mu        sync.RWMutex
	providers map[string]Provider
}

// Option configures a Router.
type Option func(*Router)

// WithTimeout sets the per-provider timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxConcurrency bounds the number of providers called at once for a
// single request.
func WithMaxConcurrency(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxConcurrency = n
		}
	}
}

// WithLogger sets the router logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer sets the tracer used for request and provider spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithObserver sets the observer notified of request outcomes.
func WithObserver(o Observer) Option {
	return func(r *Router) {
		r.observer = o
	}
}

// New creates a router reading registrations from reg and documents from
// docs.
func New(reg *registry.Registry, docs *document.Store, opts ...Option) *Router {
	r := &Router{
		reg:            reg,
		docs:           docs,
		timeout:        DefaultTimeout,
		maxConcurrency: DefaultMaxConcurrency,
		logger:         zap.NewNop(),
		tracer:         otel.Tracer("github.com/dshills/exthost/internal/router"),
		providers:      make(map[string]Provider),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "router"))
	return r
}

// Attach makes p reachable for registrations it owns. A provider attached
// under an existing id replaces it.
func (r *Router) Attach(p Provider) {
	r.mu.Lock()
	r.providers[p.ID()] = p
	r.mu.Unlock()
}

// Detach removes the provider with the given id.
func (r *Router) Detach(id string) {
	r.mu.Lock()
	delete(r.providers, id)
	r.mu.Unlock()
}

// Providers returns the ids of attached providers, sorted.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for id := range r.providers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Router) provider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// reply is a successful raw reply from one provider.
type reply struct {
	provider string
	raw      json.RawMessage
}

// outcome is the raw result of a fan-out, replies in registration order.
type outcome struct {
	replies   []reply
	errors    []*protocol.ProviderError
	providers int
}

func (o *outcome) fail(provider, method string, err error) {
	o.errors = append(o.errors, &protocol.ProviderError{Provider: provider, Method: method, Err: err})
}

// targets selects the providers a request goes to, one per owner in
// registration order. Static registrations need the family among the
// provider's negotiated families; dynamic registrations extend them.
func (r *Router) targets(method string, family protocol.Family, doc *registry.Document) []Provider {
	var regs []registry.Registration
	if doc == nil {
		regs = r.reg.ForMethod(method)
	} else {
		regs = r.reg.Match(method, *doc)
	}
	seen := make(map[string]bool, len(regs))
	var out []Provider
	for _, reg := range regs {
		if seen[reg.Owner] {
			continue
		}
		p, ok := r.provider(reg.Owner)
		if !ok {
			continue
		}
		if reg.Static && !p.Negotiated().Supports(family) {
			continue
		}
		seen[reg.Owner] = true
		out = append(out, p)
	}
	return out
}

// document resolves uri to a selector document. ok is false when the
// document is not open.
func (r *Router) document(uri protocol.DocumentURI) (registry.Document, bool) {
	snap, ok := r.docs.Snapshot(uri)
	if !ok {
		return registry.Document{}, false
	}
	return registry.Document{URI: snap.URI, LanguageID: snap.LanguageID}, true
}

// route sends params to every provider serving method for uri. An empty
// uri routes by method alone. A document that is not open yields an empty
// outcome without calling any provider.
func (r *Router) route(ctx context.Context, method string, uri protocol.DocumentURI, params any) (o outcome, err error) {
	start := time.Now()
	family, _ := protocol.FamilyForMethod(method)

	ctx, span := r.tracer.Start(ctx, method, trace.WithAttributes(
		attribute.String("exthost.family", family.String()),
		attribute.String("exthost.uri", string(uri)),
	))
	defer func() {
		span.SetAttributes(attribute.Int("exthost.providers", o.providers), attribute.Int("exthost.provider_errors", len(o.errors)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if r.observer != nil {
			r.observer.RequestDone(method, o.providers, time.Since(start), err)
		}
	}()

	if ctx.Err() != nil {
		return outcome{}, protocol.ErrRequestCancelled
	}

	var doc *registry.Document
	if uri != "" {
		d, ok := r.document(uri)
		if !ok {
			r.logger.Debug("document not open", zap.String("method", method), zap.String("uri", string(uri)))
			return outcome{}, nil
		}
		doc = &d
	}

	targets := r.targets(method, family, doc)
	o.providers = len(targets)
	if len(targets) == 0 {
		return o, nil
	}

	raws := make([]json.RawMessage, len(targets))
	errs := make([]error, len(targets))

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(r.maxConcurrency)
		for i, p := range targets {
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				continue
			}
			g.Go(func() error {
				raws[i], errs[i] = r.call(ctx, p, method, params)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Debug("request cancelled", zap.String("method", method))
		return o, protocol.ErrRequestCancelled
	}
	if ctx.Err() != nil {
		return o, protocol.ErrRequestCancelled
	}

	for i, p := range targets {
		if errs[i] != nil {
			o.fail(p.ID(), method, errs[i])
			continue
		}
		o.replies = append(o.replies, reply{provider: p.ID(), raw: raws[i]})
	}
	return o, nil
}

// call sends one provider request under the per-provider timeout.
func (r *Router) call(ctx context.Context, p Provider, method string, params any) (json.RawMessage, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, method+" "+p.ID(), trace.WithAttributes(attribute.String("exthost.provider", p.ID())))
	defer span.End()

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var raw json.RawMessage
	err := p.Call(cctx, method, params, &raw)
	if err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", ErrProviderTimeout, r.timeout)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Debug("provider failed",
			zap.String("method", method),
			zap.String("provider", p.ID()),
			zap.Error(err),
		)
	}
	if r.observer != nil {
		r.observer.ProviderDone(method, p.ID(), time.Since(start), err)
	}
	return raw, err
}
