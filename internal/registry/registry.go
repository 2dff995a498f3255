package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dshills/exthost/internal/protocol"
	"go.uber.org/zap"
)

// Registration is an active feature registration.
type Registration struct {
	ID       string
	Method   string
	Owner    string
	Selector protocol.DocumentSelector
	Options  json.RawMessage

	// Static registrations come from initialize capabilities rather than
	// client/registerCapability.
	Static bool
}

// Matches reports whether the registration applies to doc.
func (r Registration) Matches(doc Document) bool {
	return MatchSelector(r.Selector, doc)
}

// Validator can veto a registration before it is added. existing holds
// the active registrations for the same method.
type Validator func(reg Registration, existing []Registration) error

// FromProtocol converts a wire registration owned by owner. The document
// selector is read from the registration options; when the options carry
// none, fallback applies.
func FromProtocol(owner string, reg protocol.Registration, fallback protocol.DocumentSelector) (Registration, error) {
	out := Registration{
		ID:       reg.ID,
		Method:   reg.Method,
		Owner:    owner,
		Selector: fallback,
		Options:  reg.RegisterOptions,
	}
	if len(reg.RegisterOptions) > 0 && string(reg.RegisterOptions) != "null" {
		var opts protocol.TextDocumentRegistrationOptions
		if err := json.Unmarshal(reg.RegisterOptions, &opts); err != nil {
			return Registration{}, protocol.Errorf(protocol.CodeInvalidParams, "registration %s: %v", reg.ID, err)
		}
		if opts.DocumentSelector != nil {
			out.Selector = opts.DocumentSelector
		}
	}
	return out, nil
}

// Registry maps methods to their registrations. It is safe for concurrent
// use.
type Registry struct {
	mu         sync.RWMutex
	byID       map[string]*Registration
	byMethod   map[string][]*Registration
	validators []Validator
	logger     *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithValidator adds a register-time validator.
func WithValidator(v Validator) Option {
	return func(r *Registry) {
		r.validators = append(r.validators, v)
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		byID:     make(map[string]*Registration),
		byMethod: make(map[string][]*Registration),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddValidator adds a register-time validator.
func (r *Registry) AddValidator(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators = append(r.validators, v)
}

// Register adds a registration.
func (r *Registry) Register(reg Registration) error {
	return r.RegisterAll([]Registration{reg})
}

// RegisterAll adds registrations as a unit: either all are added or none.
func (r *Registry) RegisterAll(regs []Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(regs))
	pending := make(map[string][]Registration)
	for _, reg := range regs {
		if reg.ID == "" || reg.Method == "" {
			return protocol.Errorf(protocol.CodeInvalidParams, "registration needs an id and a method")
		}
		if _, exists := r.byID[reg.ID]; exists || seen[reg.ID] {
			return protocol.Errorf(protocol.CodeDuplicateRegistration, "registration %s already exists", reg.ID)
		}
		seen[reg.ID] = true
		if err := ValidateSelector(reg.Selector); err != nil {
			return err
		}

		existing := append(r.values(reg.Method), pending[reg.Method]...)
		for _, v := range r.validators {
			if err := v(reg, existing); err != nil {
				return err
			}
		}
		pending[reg.Method] = append(pending[reg.Method], reg)
	}

	for _, reg := range regs {
		r.byID[reg.ID] = &reg
		r.byMethod[reg.Method] = append(r.byMethod[reg.Method], &reg)
		r.logger.Debug("registered",
			zap.String("id", reg.ID),
			zap.String("method", reg.Method),
			zap.String("owner", reg.Owner),
		)
	}
	return nil
}

// Unregister removes a registration by id.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byID[id]
	if !ok {
		return protocol.Errorf(protocol.CodeRegistrationNotFound, "no registration with id %s", id)
	}
	r.remove(reg)
	r.logger.Debug("unregistered", zap.String("id", id), zap.String("method", reg.Method))
	return nil
}

// Get returns a registration by id.
func (r *Registry) Get(id string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[id]
	if !ok {
		return Registration{}, false
	}
	return *reg, true
}

// Match returns the registrations of method whose selector matches doc,
// in registration order. The result is never nil.
func (r *Registry) Match(method string, doc Document) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Registration{}
	for _, reg := range r.byMethod[method] {
		if reg.Matches(doc) {
			out = append(out, *reg)
		}
	}
	return out
}

// ForMethod returns every registration of method in registration order.
func (r *Registry) ForMethod(method string) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.values(method)
	if out == nil {
		out = []Registration{}
	}
	return out
}

// Owned returns every registration owned by owner.
func (r *Registry) Owned(owner string) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Registration
	for _, regs := range r.byMethod {
		for _, reg := range regs {
			if reg.Owner == owner {
				out = append(out, *reg)
			}
		}
	}
	return out
}

// RemoveOwner removes every registration owned by owner and returns how
// many were removed.
func (r *Registry) RemoveOwner(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, reg := range r.byID {
		if reg.Owner == owner {
			r.remove(reg)
			n++
		}
	}
	if n > 0 {
		r.logger.Debug("removed registrations", zap.String("owner", owner), zap.Int("count", n))
	}
	return n
}

// Clear removes every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*Registration)
	r.byMethod = make(map[string][]*Registration)
}

// Len returns the number of active registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) values(method string) []Registration {
	regs := r.byMethod[method]
	if len(regs) == 0 {
		return nil
	}
	out := make([]Registration, len(regs))
	for i, reg := range regs {
		out[i] = *reg
	}
	return out
}

func (r *Registry) remove(reg *Registration) {
	delete(r.byID, reg.ID)
	regs := r.byMethod[reg.Method]
	for i, candidate := range regs {
		if candidate == reg {
			regs = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) == 0 {
		delete(r.byMethod, reg.Method)
	} else {
		r.byMethod[reg.Method] = regs
	}
}

// String returns a short description for logs.
func (r Registration) String() string {
	return fmt.Sprintf("%s(%s by %s)", r.ID, r.Method, r.Owner)
}
