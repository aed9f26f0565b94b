package actor

import (
	"context"
	"fmt"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Future represents the result of an asynchronous computation. It allows
// consumers to wait for the result (Await), apply transformations upon
// completion (ThenApply), or register a callback to be executed when the
// result is available (OnComplete).
type Future[T any] interface {
	// Await blocks until the result is available or the context is
	// cancelled, then returns it.
	Await(ctx context.Context) fn.Result[T]

	// ThenApply registers a function to transform the result of a
	// future. The original future is not modified; a new future is
	// returned. If the passed context is cancelled while waiting for
	// the original future, the new future completes with the
	// context's error.
	ThenApply(ctx context.Context, apply func(T) T) Future[T]

	// OnComplete registers a function to be called when the result of
	// the future is ready. If the passed context is cancelled before
	// the future completes, the callback is invoked with the
	// context's error.
	OnComplete(ctx context.Context, cb func(fn.Result[T]))
}

// Promise allows the completion of an associated Future. The producer of
// an asynchronous result uses the Promise to set the outcome exactly
// once, while consumers use the Future to retrieve it.
type Promise[T any] interface {
	// Future returns the Future associated with this Promise.
	Future() Future[T]

	// Complete attempts to set the result. It returns true if this
	// call was the first to complete the future, false otherwise.
	Complete(result fn.Result[T]) bool
}

// promise is the single shared implementation of Promise and Future.
type promise[T any] struct {
	once   sync.Once
	done   chan struct{}
	result fn.Result[T]
}

// NewPromise creates an incomplete promise.
func NewPromise[T any]() Promise[T] {
	return &promise[T]{
		done: make(chan struct{}),
	}
}

// CompletedFuture returns a future that is already resolved with the
// given result.
func CompletedFuture[T any](result fn.Result[T]) Future[T] {
	p := NewPromise[T]()
	p.Complete(result)

	return p.Future()
}

// Future returns the Future view of the promise.
func (p *promise[T]) Future() Future[T] {
	return p
}

// Complete attempts to set the result of the future.
func (p *promise[T]) Complete(result fn.Result[T]) bool {
	won := false
	p.once.Do(func() {
		p.result = result
		close(p.done)
		won = true
	})

	return won
}

// Await blocks until the result is available or the context is
// cancelled.
func (p *promise[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-p.done:
		return p.result

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// ThenApply registers a transformation over the eventual result.
func (p *promise[T]) ThenApply(ctx context.Context,
	apply func(T) T) Future[T] {

	next := NewPromise[T]()
	p.OnComplete(ctx, func(result fn.Result[T]) {
		val, err := result.Unpack()
		if err != nil {
			next.Complete(fn.Err[T](err))
			return
		}

		next.Complete(fn.Ok(apply(val)))
	})

	return next.Future()
}

// OnComplete registers a callback invoked once the result is ready.
func (p *promise[T]) OnComplete(ctx context.Context,
	cb func(fn.Result[T])) {

	go func() {
		select {
		case <-p.done:
			cb(p.result)

		case <-ctx.Done():
			cb(fn.Err[T](ctx.Err()))
		}
	}()
}

// convertFuture adapts an untyped Future[any] produced by the mailbox
// into a typed Future[T]. A nil value converts to T's zero value so void
// results round-trip cleanly.
func convertFuture[T any](ctx context.Context, fut Future[any]) Future[T] {
	next := NewPromise[T]()
	fut.OnComplete(ctx, func(result fn.Result[any]) {
		val, err := result.Unpack()
		if err != nil {
			next.Complete(fn.Err[T](err))
			return
		}

		if val == nil {
			var zero T
			next.Complete(fn.Ok(zero))
			return
		}

		typed, ok := val.(T)
		if !ok {
			next.Complete(fn.Err[T](fmt.Errorf(
				"unexpected work item result type: "+
					"got %T", val,
			)))
			return
		}

		next.Complete(fn.Ok(typed))
	})

	return next.Future()
}
