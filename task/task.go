// Package task runs blocking operations in the background and delivers a
// single result over a channel.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Result carries the outcome of a background operation.
type Result[T any] struct {
	Value T
	Err   error
}

// Go runs fn on a new goroutine. The returned channel receives exactly one
// Result and is then closed, so callers never block on submission and may
// abandon the channel. A panic in fn is delivered as an error.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		defer close(ch)
		ch <- run(ctx, fn)
	}()
	return ch
}

func run[T any](ctx context.Context, fn func(context.Context) (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Err: fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())}
		}
	}()
	v, err := fn(ctx)
	return Result[T]{Value: v, Err: err}
}

// Wait blocks until ch delivers or ctx is done.
func Wait[T any](ctx context.Context, ch <-chan Result[T]) (T, error) {
	select {
	case res := <-ch:
		return res.Value, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
