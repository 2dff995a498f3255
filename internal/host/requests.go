package host

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/result"
	"github.com/dshills/exthost/internal/router"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pending describes a request in the in-flight table.
type Pending struct {
	ID      string
	Method  string
	Started time.Time
	State   result.State
}

// call is one entry of the in-flight table.
type call struct {
	method  string
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
	res     result.Result[any]
}

// inflight tracks submitted requests from submission until their result
// is taken.
type inflight struct {
	mu    sync.Mutex
	calls map[string]*call
}

func newInflight() *inflight {
	return &inflight{calls: make(map[string]*call)}
}

func (t *inflight) add(id string, c *call) {
	t.mu.Lock()
	t.calls[id] = c
	t.mu.Unlock()
}

func (t *inflight) get(id string) (*call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	return c, ok
}

func (t *inflight) finish(id string, res result.Result[any]) {
	t.mu.Lock()
	if c, ok := t.calls[id]; ok {
		c.res = res
		close(c.done)
	}
	t.mu.Unlock()
}

func (t *inflight) take(id string) (result.Result[any], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	if !ok {
		return result.Result[any]{}, false
	}
	if !c.res.IsPending() {
		delete(t.calls, id)
	}
	return c.res, true
}

func (t *inflight) list() []Pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Pending, 0, len(t.calls))
	for id, c := range t.calls {
		out = append(out, Pending{ID: id, Method: c.method, Started: c.started, State: c.res.State()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

func (t *inflight) cancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.calls {
		c.cancel()
	}
}

// Submit starts a feature request or command execution and returns its
// id in the in-flight table. The result is read with Result.
func (h *Host) Submit(ctx context.Context, method string, params any) (string, error) {
	if h.isClosed() {
		return "", ErrClosed
	}
	if method != protocol.MethodExecuteCommand && !router.Routes(method) {
		return "", protocol.Errorf(protocol.CodeMethodNotFound, "method not routed: %s", method)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", protocol.Errorf(protocol.CodeInvalidParams, "%v", err)
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)
	c := &call{
		method:  method,
		started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
		res:     result.Pending[any](),
	}
	h.inflight.add(id, c)

	go func() {
		defer cancel()
		v, err := h.dispatch(ctx, method, raw)
		if err != nil && ctx.Err() != nil {
			err = protocol.ErrRequestCancelled
		}
		h.inflight.finish(id, result.From(v, err))
		h.logger.Debug("request done",
			zap.String("id", id),
			zap.String("method", method),
			zap.Duration("elapsed", time.Since(c.started)),
			zap.Error(err),
		)
	}()
	return id, nil
}

func (h *Host) dispatch(ctx context.Context, method string, raw json.RawMessage) (any, error) {
	if method == protocol.MethodExecuteCommand {
		var params protocol.ExecuteCommandParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, protocol.Errorf(protocol.CodeInvalidParams, "%v", err)
		}
		return h.commands.Execute(ctx, params)
	}
	return h.router.Handle(ctx, method, raw)
}

// Result returns the state of a submitted request. A finished result is
// removed from the table when it is returned.
func (h *Host) Result(id string) (result.Result[any], error) {
	res, ok := h.inflight.take(id)
	if !ok {
		return res, ErrUnknownRequest
	}
	return res, nil
}

// Wait blocks until a submitted request finishes or ctx is done, then
// returns its result.
func (h *Host) Wait(ctx context.Context, id string) (any, error) {
	c, ok := h.inflight.get(id)
	if !ok {
		return nil, ErrUnknownRequest
	}
	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	res, err := h.Result(id)
	if err != nil {
		return nil, err
	}
	return res.Get()
}

// Cancel cancels a pending request. The request finishes with
// RequestCancelled and any late reply from an extension is discarded.
func (h *Host) Cancel(id string) error {
	c, ok := h.inflight.get(id)
	if !ok {
		return ErrUnknownRequest
	}
	c.cancel()
	return nil
}

// InFlight lists the requests in the table, oldest first.
func (h *Host) InFlight() []Pending {
	return h.inflight.list()
}

// Request runs a feature request or command execution and waits for it.
// Cancelling ctx cancels the request.
func (h *Host) Request(ctx context.Context, method string, params any) (any, error) {
	id, err := h.Submit(ctx, method, params)
	if err != nil {
		return nil, err
	}
	v, err := h.Wait(context.WithoutCancel(ctx), id)
	return v, err
}
