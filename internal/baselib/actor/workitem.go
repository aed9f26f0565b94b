package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// payloadKind tags the four shapes a work item's thunk can take. The
// mailbox worker dispatches once on the tag.
type payloadKind uint8

const (
	payloadSyncVoid payloadKind = iota
	payloadSyncResult
	payloadAsyncVoid
	payloadAsyncResult
)

// payload is the tagged sum of thunk shapes. Exactly one of the function
// fields matching the kind is non-nil. Async variants return a Future
// the runner awaits, so a thunk can hand off to other actors without
// holding its own goroutine hostage.
type payload struct {
	kind payloadKind

	syncVoid    func(ctx context.Context) error
	syncResult  func(ctx context.Context) (any, error)
	asyncVoid   func(ctx context.Context) Future[any]
	asyncResult func(ctx context.Context) Future[any]
}

// run dispatches on the tag and normalizes the outcome into a single
// untyped result. Void variants resolve to a nil value.
func (p *payload) run(ctx context.Context) fn.Result[any] {
	switch p.kind {
	case payloadSyncVoid:
		if err := p.syncVoid(ctx); err != nil {
			return fn.Err[any](err)
		}

		return fn.Ok[any](nil)

	case payloadSyncResult:
		val, err := p.syncResult(ctx)
		if err != nil {
			return fn.Err[any](err)
		}

		return fn.Ok(val)

	case payloadAsyncVoid:
		return p.asyncVoid(ctx).Await(ctx)

	case payloadAsyncResult:
		return p.asyncResult(ctx).Await(ctx)

	default:
		return fn.Err[any](fmt.Errorf(
			"unknown payload kind %d", p.kind,
		))
	}
}

// workItem is one unit of queued mailbox work: a tagged thunk, the chain
// id it runs under, a completion promise, and a deadline. The promise
// completes exactly once: by successful execution, by an error from the
// thunk, or by the mailbox's forced-cancel path on timeout.
type workItem struct {
	// owner is the mailbox the item was enqueued on.
	owner *Mailbox

	// chainID is the call chain the item executes under.
	chainID uint64

	// deadline bounds execution; NoDeadline disables the timer.
	deadline time.Duration

	// promise resolves with the thunk's result.
	promise Promise[any]

	// pay is the tagged thunk.
	pay payload

	// trace identifies the item in logs.
	trace string

	// itemID correlates log lines for one item.
	itemID string

	// enqueuedAt records admission time for queue latency tracing.
	enqueuedAt time.Time
}

// newWorkItem builds an item bound to the given mailbox and chain.
func newWorkItem(owner *Mailbox, chainID uint64, deadline time.Duration,
	trace string, pay payload) *workItem {

	return &workItem{
		owner:      owner,
		chainID:    chainID,
		deadline:   deadline,
		promise:    NewPromise[any](),
		pay:        pay,
		trace:      trace,
		itemID:     uuid.New().String(),
		enqueuedAt: time.Now(),
	}
}

// runOnce installs the call context, runs the thunk, and completes the
// promise. Thunk errors are logged and delivered through the promise;
// they never reach the mailbox loop. A panicking thunk is contained the
// same way.
func (w *workItem) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Criticalf("Work item panic: trace=%s item=%s "+
				"actor=%v: %v", w.trace, w.itemID,
				w.owner.ownerID, r)

			w.promise.Complete(fn.Err[any](fmt.Errorf(
				"work item panic: %v", r,
			)))
		}
	}()

	ctx = WithCall(ctx, Call{Chain: w.chainID, Actor: w.owner.ownerID})

	result := w.pay.run(ctx)
	if _, err := result.Unpack(); err != nil {
		log.Errorf("Work item failed: trace=%s item=%s actor=%v: %v",
			w.trace, w.itemID, w.owner.ownerID, err)
	}

	w.promise.Complete(result)
}

// forceComplete releases the item's promise with ErrDeadlineForced. Used
// only by the mailbox's timeout path; the thunk itself keeps running
// detached and its own completion attempt becomes a no-op.
func (w *workItem) forceComplete() {
	w.promise.Complete(fn.Err[any](ErrDeadlineForced))
}
