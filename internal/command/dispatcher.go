package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/registry"
	"go.uber.org/zap"
)

// Handler executes a host-local command.
type Handler func(ctx context.Context, args []any) (any, error)

// Remote executes a command owned by an extension.
type Remote func(ctx context.Context, owner string, params protocol.ExecuteCommandParams) (json.RawMessage, error)

// Dispatcher routes command executions. It is safe for concurrent use.
type Dispatcher struct {
	reg    *registry.Registry
	remote Remote
	logger *zap.Logger

	mu    sync.RWMutex
	local map[string]Handler
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a dispatcher over reg and installs its claim validator.
// remote may be nil when only local commands are used.
func New(reg *registry.Registry, remote Remote, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:    reg,
		remote: remote,
		logger: zap.NewNop(),
		local:  make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(d)
	}
	reg.AddValidator(d.validate)
	return d
}

// HostOwner owns the registrations of host-local commands.
const HostOwner = "$host"

func localID(id string) string { return HostOwner + "/" + id }

// RegisterLocal claims id for a host-local handler. The claim is recorded
// in the registry so that it competes with extension claims under the
// same validator.
func (d *Dispatcher) RegisterLocal(id string, h Handler) error {
	if id == "" || h == nil {
		return protocol.Errorf(protocol.CodeInvalidParams, "command needs an id and a handler")
	}
	opts, err := json.Marshal(protocol.ExecuteCommandRegistrationOptions{Commands: []string{id}})
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	err = d.reg.Register(registry.Registration{
		ID:      localID(id),
		Method:  protocol.MethodExecuteCommand,
		Owner:   HostOwner,
		Options: opts,
	})
	if err != nil {
		return err
	}
	d.local[id] = h
	return nil
}

// UnregisterLocal releases a host-local command.
func (d *Dispatcher) UnregisterLocal(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.local[id]; !ok {
		return
	}
	delete(d.local, id)
	if err := d.reg.Unregister(localID(id)); err != nil {
		d.logger.Debug("release local command", zap.String("command", id), zap.Error(err))
	}
}

// Execute runs the handler that owns params.Command.
func (d *Dispatcher) Execute(ctx context.Context, params protocol.ExecuteCommandParams) (any, error) {
	owner, ok := d.ownerOf(params.Command)
	if !ok {
		return nil, protocol.Errorf(protocol.CodeCommandNotFound, "command not found: %s", params.Command)
	}

	if owner == HostOwner {
		d.mu.RLock()
		h, isLocal := d.local[params.Command]
		d.mu.RUnlock()
		if !isLocal {
			return nil, protocol.Errorf(protocol.CodeCommandNotFound, "command not found: %s", params.Command)
		}
		return d.runLocal(ctx, params, h)
	}

	if d.remote == nil {
		return nil, protocol.Errorf(protocol.CodeCommandNotFound, "command not found: %s", params.Command)
	}
	result, err := d.remote(ctx, owner, params)
	if err != nil {
		return nil, d.executionError(params.Command, err)
	}
	return result, nil
}

func (d *Dispatcher) runLocal(ctx context.Context, params protocol.ExecuteCommandParams, h Handler) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command panic", zap.String("command", params.Command), zap.Any("panic", r))
			err = protocol.Errorf(protocol.CodeCommandExecution, "command %s panicked: %v", params.Command, r)
		}
	}()
	result, err = h(ctx, params.Arguments)
	if err != nil {
		return nil, d.executionError(params.Command, err)
	}
	return result, nil
}

// executionError wraps a handler failure. Cancellation keeps its own code.
func (d *Dispatcher) executionError(command string, err error) error {
	if errors.Is(err, protocol.ErrRequestCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return protocol.Errorf(protocol.CodeRequestCancelled, "command %s: %v", command, err)
	}
	d.logger.Debug("command failed", zap.String("command", command), zap.Error(err))
	msg := err.Error()
	var rpcErr *protocol.Error
	if errors.As(err, &rpcErr) {
		msg = rpcErr.Message
	}
	return &protocol.Error{Code: protocol.CodeCommandExecution, Message: msg}
}

// Owner returns who executes id: HostOwner or an extension id.
func (d *Dispatcher) Owner(id string) (string, bool) {
	return d.ownerOf(id)
}

// Commands lists every executable command id in sorted order.
func (d *Dispatcher) Commands() []string {
	seen := make(map[string]bool)
	for _, reg := range d.reg.ForMethod(protocol.MethodExecuteCommand) {
		for _, id := range commandsOf(reg) {
			seen[id] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (d *Dispatcher) ownerOf(id string) (string, bool) {
	for _, reg := range d.reg.ForMethod(protocol.MethodExecuteCommand) {
		for _, cmd := range commandsOf(reg) {
			if cmd == id {
				return reg.Owner, true
			}
		}
	}
	return "", false
}

// validate rejects executeCommand registrations that claim an id that is
// already owned. It runs under the registry lock and must not call back
// into the registry or take the dispatcher lock.
func (d *Dispatcher) validate(reg registry.Registration, existing []registry.Registration) error {
	if reg.Method != protocol.MethodExecuteCommand {
		return nil
	}
	claimed := make(map[string]string)
	for _, other := range existing {
		for _, id := range commandsOf(other) {
			claimed[id] = other.Owner
		}
	}

	seen := make(map[string]bool)
	for _, id := range commandsOf(reg) {
		if seen[id] {
			return protocol.Errorf(protocol.CodeDuplicateRegistration, "registration %s lists command %s twice", reg.ID, id)
		}
		seen[id] = true
		if owner, ok := claimed[id]; ok {
			return protocol.Errorf(protocol.CodeDuplicateRegistration, "command %s is already registered by %s", id, owner)
		}
	}
	return nil
}

func commandsOf(reg registry.Registration) []string {
	if len(reg.Options) == 0 {
		return nil
	}
	var opts protocol.ExecuteCommandRegistrationOptions
	if err := json.Unmarshal(reg.Options, &opts); err != nil {
		return nil
	}
	return opts.Commands
}

// String describes the dispatcher for logs.
func (d *Dispatcher) String() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fmt.Sprintf("command.Dispatcher(%d local)", len(d.local))
}
