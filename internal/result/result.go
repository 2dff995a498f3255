// Package result provides a three-state value for outputs that arrive
// asynchronously: pending, failed with a reason, or ready with a value.
package result

import (
	"errors"
	"fmt"
)

// State is the tag of a Result.
type State int

const (
	StatePending State = iota
	StateFailed
	StateReady
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFailed:
		return "failed"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ErrPending is returned by Get while a result is still pending.
var ErrPending = errors.New("result: pending")

// Result is Pending, Failed(reason) or Ready(value). The zero value is Pending.
type Result[T any] struct {
	state State
	value T
	err   error
}

// Pending returns a pending result.
func Pending[T any]() Result[T] { return Result[T]{} }

// Ready returns a result holding v.
func Ready[T any](v T) Result[T] { return Result[T]{state: StateReady, value: v} }

// Failed returns a failed result. A nil reason is replaced with a generic error.
func Failed[T any](reason error) Result[T] {
	if reason == nil {
		reason = errors.New("result: failed")
	}
	return Result[T]{state: StateFailed, err: reason}
}

// From builds a Ready or Failed result from a value and error pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Failed[T](err)
	}
	return Ready(v)
}

// State returns the tag.
func (r Result[T]) State() State { return r.state }

// IsPending reports a pending result.
func (r Result[T]) IsPending() bool { return r.state == StatePending }

// IsReady reports a ready result.
func (r Result[T]) IsReady() bool { return r.state == StateReady }

// IsFailed reports a failed result.
func (r Result[T]) IsFailed() bool { return r.state == StateFailed }

// Get returns the value, the failure reason, or ErrPending.
func (r Result[T]) Get() (T, error) {
	switch r.state {
	case StateReady:
		return r.value, nil
	case StateFailed:
		var zero T
		return zero, r.err
	default:
		var zero T
		return zero, ErrPending
	}
}

// Reason returns the failure reason, or nil.
func (r Result[T]) Reason() error { return r.err }

// Or returns the value if ready, otherwise fallback.
func (r Result[T]) Or(fallback T) T {
	if r.state == StateReady {
		return r.value
	}
	return fallback
}

// String renders the result for logs.
func (r Result[T]) String() string {
	switch r.state {
	case StateReady:
		return fmt.Sprintf("ready(%v)", r.value)
	case StateFailed:
		return fmt.Sprintf("failed(%v)", r.err)
	default:
		return "pending"
	}
}

// Map transforms a ready value, passing pending and failed through.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	switch r.state {
	case StateReady:
		return Ready(fn(r.value))
	case StateFailed:
		return Failed[U](r.err)
	default:
		return Pending[U]()
	}
}
