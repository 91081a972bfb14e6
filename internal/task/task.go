// Package task runs pipelines in the background and delivers their outcome on a channel.
package task

import (
	"context"
	"fmt"
)

// Outcome is the result of a background pipeline.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Go runs fn on its own goroutine. The returned channel receives exactly one Outcome and is then closed. A panic in
// fn is reported as an error.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) <-chan Outcome[T] {
	out := make(chan Outcome[T], 1)

	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				out <- Outcome[T]{Err: fmt.Errorf("task panicked: %v", r)}
			}
		}()

		v, err := fn(ctx)
		out <- Outcome[T]{Value: v, Err: err}
	}()

	return out
}

// Wait blocks until the outcome arrives or ctx ends.
func Wait[T any](ctx context.Context, results <-chan Outcome[T]) (T, error) {
	select {
	case o, ok := <-results:
		if !ok {
			var zero T
			return zero, fmt.Errorf("task: no outcome delivered")
		}
		return o.Value, o.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
