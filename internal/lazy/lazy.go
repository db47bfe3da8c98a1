// Package lazy builds a client on first use and remembers the outcome.
package lazy

import (
	"context"
	"errors"
	"sync"
)

type State int

const (
	Uninitialized State = iota
	Ready
	Unavailable
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Unavailable:
		return "unavailable"
	default:
		return "uninitialized"
	}
}

// ErrUnavailable is returned once initialization has failed. It wraps the
// original cause.
var ErrUnavailable = errors.New("client unavailable")

// Value holds a client built by init on the first Get. A failed init is not
// retried until Reset is called.
type Value[T any] struct {
	init func(ctx context.Context) (T, error)

	mu    sync.Mutex
	state State
	value T
	err   error
}

func New[T any](init func(ctx context.Context) (T, error)) *Value[T] {
	return &Value[T]{init: init}
}

func (v *Value[T]) Get(ctx context.Context) (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch v.state {
	case Ready:
		return v.value, nil
	case Unavailable:
		var zero T
		return zero, v.err
	}

	// Initialisation outlives the request that triggers it.
	value, err := v.init(context.WithoutCancel(ctx))
	if err != nil {
		v.state = Unavailable
		v.err = errors.Join(ErrUnavailable, err)
		var zero T
		return zero, v.err
	}

	v.state = Ready
	v.value = value
	return value, nil
}

func (v *Value[T]) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Reset forgets the current client or failure so the next Get initializes again.
func (v *Value[T]) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	var zero T
	v.state = Uninitialized
	v.value = zero
	v.err = nil
}
