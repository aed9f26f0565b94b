// Package actorutil provides utility functions for working with the
// actor runtime's futures and mailboxes.
package actorutil

import (
	"context"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/gamecore/internal/baselib/actor"
)

// ErrAwaitTimeout is returned by AwaitAllTimeout when the budget elapses
// before every future resolved.
var ErrAwaitTimeout = fmt.Errorf("await budget exceeded")

// AskAwait is a convenience function that submits request/response work
// to a mailbox and blocks until the result is available, unpacking it
// directly.
func AskAwait[T any](ctx context.Context, mb *actor.Mailbox, trace string,
	deadline time.Duration,
	work func(ctx context.Context) (T, error)) (T, error) {

	fut := actor.Ask(ctx, mb, trace, deadline, work)
	return fut.Await(ctx).Unpack()
}

// AwaitAll blocks until every future resolves and returns the results in
// input order.
func AwaitAll[T any](ctx context.Context,
	futures []actor.Future[T]) []fn.Result[T] {

	results := make([]fn.Result[T], len(futures))
	for i, fut := range futures {
		results[i] = fut.Await(ctx)
	}

	return results
}

// AwaitAllTimeout waits for every future, giving the whole batch a
// shared wall-clock budget. It uses a completion counter fed by each
// future's callback, so slow futures keep counting down the same budget
// rather than each receiving a fresh one. On budget exhaustion it
// returns ErrAwaitTimeout; the unresolved futures keep running.
func AwaitAllTimeout[T any](ctx context.Context,
	futures []actor.Future[T], budget time.Duration) error {

	if len(futures) == 0 {
		return nil
	}

	completions := make(chan struct{}, len(futures))
	for _, fut := range futures {
		fut.OnComplete(ctx, func(fn.Result[T]) {
			completions <- struct{}{}
		})
	}

	timer := time.NewTimer(budget)
	defer timer.Stop()

	for remaining := len(futures); remaining > 0; remaining-- {
		select {
		case <-completions:

		case <-timer.C:
			return ErrAwaitTimeout

		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// CollectSuccesses filters a slice of results and returns only the
// successful values, discarding any errors.
func CollectSuccesses[T any](results []fn.Result[T]) []T {
	var successes []T
	for _, r := range results {
		val, err := r.Unpack()
		if err == nil {
			successes = append(successes, val)
		}
	}

	return successes
}

// FirstError returns the first error from a slice of results, or nil if
// all succeeded.
func FirstError[T any](results []fn.Result[T]) error {
	for _, r := range results {
		if _, err := r.Unpack(); err != nil {
			return err
		}
	}

	return nil
}

// AllSucceeded returns true if all results in the slice are successful.
func AllSucceeded[T any](results []fn.Result[T]) bool {
	return FirstError(results) == nil
}
