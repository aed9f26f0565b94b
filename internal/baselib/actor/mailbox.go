package actor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// DefaultDeadline bounds ordinary work items. An item that has not
	// completed within this window has its promise force-completed so
	// the mailbox can advance.
	DefaultDeadline = 13 * time.Second

	// NoDeadline disables the per-item timer. Lifecycle operations
	// (save, deactivate, cross-day) run without a deadline because
	// truncating them would corrupt state.
	NoDeadline time.Duration = 0

	// defaultQueueCapacity is the mailbox channel buffer. Enqueue
	// blocks (never drops) when the buffer is full, preserving FIFO
	// admission under burst.
	defaultQueueCapacity = 1024
)

// MailboxConfig holds the parameters for creating a mailbox.
type MailboxConfig struct {
	// Owner is the id of the actor (or lifecycle lane) the mailbox
	// serves.
	Owner ID

	// QueueCapacity overrides the default channel buffer when > 0.
	QueueCapacity int

	// Guard, when non-nil, is consulted on every checked ask before
	// admission. Only set when the process runs in debug mode.
	Guard CallGuard

	// Wg, when non-nil, tracks the worker goroutine for deterministic
	// shutdown.
	Wg *sync.WaitGroup
}

// Mailbox is a single-consumer work queue executing items strictly one
// at a time in FIFO order. It implements the reentrancy short-circuit:
// an ask arriving from the chain that is presently executing on this
// mailbox runs inline on the caller's stack instead of enqueuing, which
// is what keeps self-calls and same-chain call cycles from deadlocking
// on their own queue.
type Mailbox struct {
	// ownerID is the owning actor's id, installed into the call
	// context of every item.
	ownerID ID

	// queue holds pending work items.
	queue chan *workItem

	// currentChain is the chain id of the item presently executing,
	// or 0 when the worker is idle.
	currentChain atomic.Uint64

	// guard is the optional debug-mode call permission check.
	guard CallGuard

	// ctx governs the worker's lifetime.
	ctx    context.Context
	cancel context.CancelFunc

	// wg optionally tracks the worker goroutine.
	wg *sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewMailbox creates a mailbox. Start must be called before any work is
// submitted.
func NewMailbox(cfg MailboxConfig) *Mailbox {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mailbox{
		ownerID: cfg.Owner,
		queue:   make(chan *workItem, capacity),
		guard:   cfg.Guard,
		ctx:     ctx,
		cancel:  cancel,
		wg:      cfg.Wg,
	}
}

// Owner returns the id of the actor the mailbox serves.
func (m *Mailbox) Owner() ID {
	return m.ownerID
}

// CurrentChainID returns the chain id of the item presently executing,
// or 0 when the worker is idle.
func (m *Mailbox) CurrentChainID() uint64 {
	return m.currentChain.Load()
}

// QueueLen returns the number of items waiting in the queue. Items being
// executed are not counted.
func (m *Mailbox) QueueLen() int {
	return len(m.queue)
}

// Start launches the single worker goroutine. Repeated calls are no-ops.
func (m *Mailbox) Start() {
	m.startOnce.Do(func() {
		if m.wg != nil {
			m.wg.Add(1)
		}
		go m.worker()
	})
}

// Stop terminates the worker. Queued items that never ran have their
// promises completed with ErrMailboxClosed. The item being executed, if
// any, is left to finish detached.
func (m *Mailbox) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
	})
}

// worker is the single consumer loop: pull an item, execute it under its
// deadline, advance. At most one item from the queue is in the executing
// state at any moment.
func (m *Mailbox) worker() {
	if m.wg != nil {
		defer m.wg.Done()
	}

	for {
		// Shutdown takes priority over any item still queued.
		if m.ctx.Err() != nil {
			m.drain()
			return
		}

		select {
		case item := <-m.queue:
			m.runItem(item)

		case <-m.ctx.Done():
			m.drain()
			return
		}
	}
}

// drain releases the promises of items that will never run.
func (m *Mailbox) drain() {
	for {
		select {
		case item := <-m.queue:
			log.Debugf("Draining work item on closed mailbox: "+
				"trace=%s actor=%v", item.trace, m.ownerID)

			item.promise.Complete(fn.Err[any](ErrMailboxClosed))

		default:
			return
		}
	}
}

// runItem executes one item. The thunk runs on its own goroutine so that
// a deadline expiry can release the mailbox while the thunk continues
// detached: forcing cancellation across arbitrary code is unsafe, but a
// stuck item must not wedge the actor. The worker does not pick up the
// next item until the current one completes or its deadline fires.
func (m *Mailbox) runItem(item *workItem) {
	m.currentChain.Store(item.chainID)
	defer m.currentChain.Store(0)

	queueWait := time.Since(item.enqueuedAt)
	log.Tracef("Mailbox executing item: trace=%s item=%s actor=%v "+
		"chain=%d queue_wait=%v", item.trace, item.itemID, m.ownerID,
		item.chainID, queueWait)

	done := make(chan struct{})
	go func() {
		defer close(done)
		item.runOnce(m.ctx)
	}()

	if item.deadline == NoDeadline {
		select {
		case <-done:
		case <-m.ctx.Done():
		}
		return
	}

	timer := time.NewTimer(item.deadline)
	defer timer.Stop()

	select {
	case <-done:

	case <-timer.C:
		log.Criticalf("Work item deadline exceeded, releasing "+
			"promise and detaching thunk: trace=%s item=%s "+
			"actor=%v chain=%d deadline=%v", item.trace,
			item.itemID, m.ownerID, item.chainID, item.deadline)

		item.forceComplete()

	case <-m.ctx.Done():
	}
}

// enqueue admits an item, blocking when the buffer is full. Returns
// false if the mailbox shut down first.
func (m *Mailbox) enqueue(item *workItem) bool {
	select {
	case m.queue <- item:
		return true

	case <-m.ctx.Done():
		return false
	}
}

// Tell submits fire-and-forget work under a freshly minted chain id. The
// caller gets no promise and is never suspended beyond queue admission.
func (m *Mailbox) Tell(ctx context.Context, trace string,
	work func(ctx context.Context) error) {

	m.TellWithDeadline(ctx, trace, DefaultDeadline, work)
}

// TellWithDeadline is Tell with an explicit execution deadline. Lifecycle
// dispatch passes NoDeadline so a slow save can never detach the work
// and break the lane's serialization.
func (m *Mailbox) TellWithDeadline(ctx context.Context, trace string,
	deadline time.Duration, work func(ctx context.Context) error) {

	item := newWorkItem(m, NextChainID(), deadline, trace, payload{
		kind:     payloadSyncVoid,
		syncVoid: work,
	})

	if !m.enqueue(item) {
		log.Debugf("Tell dropped, mailbox closed: trace=%s actor=%v",
			trace, m.ownerID)

		item.promise.Complete(fn.Err[any](ErrMailboxClosed))
	}
}

// ask is the request/response core. It evaluates the reentrancy
// predicate against the caller's context: a caller with no chain, or on
// a different chain than the one presently executing here, gets a queued
// item (joining its own chain if it has one). A caller already executing
// on this mailbox under the same chain runs inline, on its own stack,
// and receives an already-completed future — without the inline branch
// such a call would wait on a queue position that can never be reached.
func (m *Mailbox) ask(ctx context.Context, trace string,
	deadline time.Duration, checked bool, pay payload) Future[any] {

	caller := CallOf(ctx)

	if checked && m.guard != nil {
		if err := m.guard.Allow(caller, m.ownerID); err != nil {
			log.Errorf("Call guard rejected ask: trace=%s "+
				"caller=%v target=%v: %v", trace,
				caller.Actor, m.ownerID, err)

			return CompletedFuture(fn.Err[any](err))
		}
	}

	needEnqueue := caller.Chain == 0 ||
		caller.Chain != m.currentChain.Load()

	if !needEnqueue {
		log.Tracef("Reentrant ask running inline: trace=%s actor=%v "+
			"chain=%d", trace, m.ownerID, caller.Chain)

		inlineCtx := WithCall(ctx, Call{
			Chain: caller.Chain,
			Actor: m.ownerID,
		})

		return CompletedFuture(pay.run(inlineCtx))
	}

	chainID := caller.Chain
	if chainID == 0 {
		chainID = NextChainID()
	}

	item := newWorkItem(m, chainID, deadline, trace, pay)
	if !m.enqueue(item) {
		item.promise.Complete(fn.Err[any](ErrMailboxClosed))
	}

	return item.promise.Future()
}

// Ask submits request/response work, applying the reentrancy rule and,
// in debug mode, the call guard. The returned future resolves with the
// work's result, an error, or ErrDeadlineForced.
func Ask[T any](ctx context.Context, m *Mailbox, trace string,
	deadline time.Duration,
	work func(ctx context.Context) (T, error)) Future[T] {

	fut := m.ask(ctx, trace, deadline, true, payload{
		kind: payloadSyncResult,
		syncResult: func(ctx context.Context) (any, error) {
			return work(ctx)
		},
	})

	return convertFuture[T](ctx, fut)
}

// AskVoid is Ask for work without a result.
func AskVoid(ctx context.Context, m *Mailbox, trace string,
	deadline time.Duration,
	work func(ctx context.Context) error) Future[any] {

	return m.ask(ctx, trace, deadline, true, payload{
		kind:     payloadSyncVoid,
		syncVoid: work,
	})
}

// AskAsync submits work that itself returns a future; the item completes
// when that future resolves.
func AskAsync[T any](ctx context.Context, m *Mailbox, trace string,
	deadline time.Duration,
	work func(ctx context.Context) Future[T]) Future[T] {

	fut := m.ask(ctx, trace, deadline, true, payload{
		kind: payloadAsyncResult,
		asyncResult: func(ctx context.Context) Future[any] {
			inner := work(ctx)
			next := NewPromise[any]()
			inner.OnComplete(ctx, func(res fn.Result[T]) {
				val, err := res.Unpack()
				if err != nil {
					next.Complete(fn.Err[any](err))
					return
				}

				next.Complete(fn.Ok[any](val))
			})

			return next.Future()
		},
	})

	return convertFuture[T](ctx, fut)
}

// askUnchecked is Ask minus the debug call guard. Used internally for
// agent resolution and activation, which must be admitted even under
// guard policies that forbid the originating cross-actor pattern.
func askUnchecked[T any](ctx context.Context, m *Mailbox, trace string,
	deadline time.Duration,
	work func(ctx context.Context) (T, error)) Future[T] {

	fut := m.ask(ctx, trace, deadline, false, payload{
		kind: payloadSyncResult,
		syncResult: func(ctx context.Context) (any, error) {
			return work(ctx)
		},
	})

	return convertFuture[T](ctx, fut)
}

// AskVoidNoDeadline is a convenience wrapper for lifecycle operations.
func AskVoidNoDeadline(ctx context.Context, m *Mailbox, trace string,
	work func(ctx context.Context) error) Future[any] {

	return AskVoid(ctx, m, trace, NoDeadline, work)
}
