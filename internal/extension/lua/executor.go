package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// ErrExecutorClosed is returned when the executor no longer runs.
var ErrExecutorClosed = errors.New("lua: executor closed")

type job struct {
	fn     func(L *lua.LState) error
	result chan error
}

// executor serializes all access to a Lua state through one goroutine.
// gopher-lua states are not goroutine-safe.
type executor struct {
	L       *lua.LState
	queue   chan *job
	closed  atomic.Bool
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newExecutor(L *lua.LState, queueSize int) *executor {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &executor{
		L:       L,
		queue:   make(chan *job, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// run processes jobs until ctx ends or close is called. It must be the
// only goroutine touching the state.
func (e *executor) run(ctx context.Context) {
	defer close(e.stopped)
	for {
		select {
		case <-ctx.Done():
			e.drain(ctx.Err())
			return
		case <-e.done:
			e.drain(ErrExecutorClosed)
			return
		case j := <-e.queue:
			j.result <- e.exec(j)
		}
	}
}

func (e *executor) exec(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return j.fn(e.L)
}

func (e *executor) drain(err error) {
	for {
		select {
		case j := <-e.queue:
			j.result <- err
		default:
			return
		}
	}
}

// execute runs fn on the executor goroutine and waits for it. The state
// observes ctx, so a cancelled request interrupts the running script.
func (e *executor) execute(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	j := &job{
		fn: func(L *lua.LState) error {
			L.SetContext(ctx)
			defer L.RemoveContext()
			return fn(L)
		},
		result: make(chan error, 1),
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- j:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-j.result:
		return err
	}
}

// close stops the executor and waits for the run loop to return.
func (e *executor) close() {
	e.once.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
	<-e.stopped
}
