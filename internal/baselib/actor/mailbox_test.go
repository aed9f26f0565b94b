package actor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// newTestMailbox creates and starts a mailbox for tests.
func newTestMailbox(t *testing.T, owner ID) *Mailbox {
	t.Helper()

	mb := NewMailbox(MailboxConfig{Owner: owner})
	mb.Start()
	t.Cleanup(mb.Stop)

	return mb
}

// TestMailboxSerialExecution verifies that items submitted to one
// mailbox run strictly one at a time, in submission order.
func TestMailboxSerialExecution(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mb := newTestMailbox(t, RoleID(1))

	const numItems = 50

	var (
		mu       sync.Mutex
		order    []int
		inflight atomic.Int32
		maxSeen  atomic.Int32
	)

	futures := make([]Future[int], numItems)
	for i := 0; i < numItems; i++ {
		idx := i
		futures[i] = Ask(ctx, mb, "serial-test", DefaultDeadline,
			func(ctx context.Context) (int, error) {
				cur := inflight.Add(1)
				if cur > maxSeen.Load() {
					maxSeen.Store(cur)
				}

				mu.Lock()
				order = append(order, idx)
				mu.Unlock()

				// Give overlap a chance to show up.
				time.Sleep(time.Millisecond)
				inflight.Add(-1)

				return idx, nil
			},
		)
	}

	for i, fut := range futures {
		val, err := fut.Await(ctx).Unpack()
		require.NoError(t, err)
		require.Equal(t, i, val)
	}

	require.EqualValues(t, 1, maxSeen.Load(),
		"two items overlapped on one mailbox")

	mu.Lock()
	defer mu.Unlock()
	for i, idx := range order {
		require.Equal(t, i, idx, "items ran out of order")
	}
}

// TestMailboxTellOrdering verifies fire-and-forget items drain in FIFO
// order.
func TestMailboxTellOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mb := newTestMailbox(t, RoleID(2))

	const numItems = 20

	var (
		mu    sync.Mutex
		order []int
	)
	done := make(chan struct{})

	for i := 0; i < numItems; i++ {
		idx := i
		mb.Tell(ctx, "tell-order", func(ctx context.Context) error {
			mu.Lock()
			order = append(order, idx)
			if len(order) == numItems {
				close(done)
			}
			mu.Unlock()

			return nil
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tells were not processed")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, idx := range order {
		require.Equal(t, i, idx)
	}
}

// TestSelfReentrancyInline verifies that an ask issued from within an
// item on the same mailbox, under the same chain, runs inline rather
// than enqueuing: the mailbox executes exactly one outer item and the
// inner call completes while the queue is empty.
func TestSelfReentrancyInline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mb := newTestMailbox(t, RoleID(3))

	outer := Ask(ctx, mb, "outer", DefaultDeadline,
		func(ctx context.Context) (string, error) {
			outerChain := ChainID(ctx)
			require.NotZero(t, outerChain)

			// The inner ask must not enqueue: the queue stays
			// empty and the result is available synchronously.
			inner := Ask(ctx, mb, "inner", DefaultDeadline,
				func(ctx context.Context) (string, error) {
					require.Equal(t, outerChain,
						ChainID(ctx),
						"inner call lost the chain")

					return "ok", nil
				},
			)

			require.Zero(t, mb.QueueLen(),
				"reentrant ask was enqueued")

			val, err := inner.Await(ctx).Unpack()
			require.NoError(t, err)

			return val, nil
		},
	)

	val, err := outer.Await(ctx).Unpack()
	require.NoError(t, err)
	require.Equal(t, "ok", val)
}

// TestCrossActorPingPong verifies the shared-chain cycle: A asks B,
// which asks back into A. The reentrant leg runs inline on A, so all
// three frames resolve without deadlock and the chain id is identical
// across both mailboxes.
func TestCrossActorPingPong(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mbA := newTestMailbox(t, RoleID(10))
	mbB := newTestMailbox(t, RoleID(11))

	outer := Ask(ctx, mbA, "a-outer", DefaultDeadline,
		func(ctx context.Context) (int, error) {
			chain := ChainID(ctx)

			// Hop to B under the same chain.
			onB := Ask(ctx, mbB, "b-frame", DefaultDeadline,
				func(ctx context.Context) (int, error) {
					require.Equal(t, chain, ChainID(ctx))

					// And back into A: this is the frame
					// that would deadlock without the
					// inline rule, since A's worker is
					// parked in the outer item.
					backOnA := Ask(ctx, mbA, "a-reenter",
						DefaultDeadline,
						func(ctx context.Context) (int, error) {
							require.Equal(t,
								chain,
								ChainID(ctx))

							return 42, nil
						},
					)

					return backOnA.Await(ctx).Unpack()
				},
			)

			return onB.Await(ctx).Unpack()
		},
	)

	val, err := outer.Await(ctx).Unpack()
	require.NoError(t, err)
	require.Equal(t, 42, val)
}

// TestAskFromDifferentChainEnqueues verifies that a caller carrying a
// chain other than the one executing on the mailbox is queued, not run
// inline.
func TestAskFromDifferentChainEnqueues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mb := newTestMailbox(t, RoleID(4))

	occupied := make(chan struct{})
	release := make(chan struct{})

	// Park the mailbox in a long-running item.
	parked := AskVoid(ctx, mb, "parked", NoDeadline,
		func(ctx context.Context) error {
			close(occupied)
			<-release

			return nil
		},
	)

	<-occupied

	// A foreign chain must enqueue behind the parked item.
	foreignCtx := WithCall(ctx, Call{Chain: NextChainID()})
	fut := Ask(foreignCtx, mb, "foreign", DefaultDeadline,
		func(ctx context.Context) (string, error) {
			return "queued", nil
		},
	)

	// The foreign item cannot have run yet.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, mb.QueueLen())

	close(release)

	_, err := parked.Await(ctx).Unpack()
	require.NoError(t, err)

	val, err := fut.Await(ctx).Unpack()
	require.NoError(t, err)
	require.Equal(t, "queued", val)
}

// TestDeadlineReleasesMailbox verifies that a stuck item's promise is
// force-completed at its deadline and the mailbox keeps processing
// subsequent items; the stuck thunk itself is left running detached.
func TestDeadlineReleasesMailbox(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mb := newTestMailbox(t, RoleID(5))

	stuckRelease := make(chan struct{})
	defer close(stuckRelease)

	start := time.Now()
	stuck := Ask(ctx, mb, "stuck", 100*time.Millisecond,
		func(ctx context.Context) (int, error) {
			<-stuckRelease

			return 0, nil
		},
	)

	_, err := stuck.Await(ctx).Unpack()
	require.ErrorIs(t, err, ErrDeadlineForced)
	require.Less(t, time.Since(start), 3*time.Second,
		"deadline did not fire promptly")

	// The mailbox must advance past the stuck item.
	processed := make(chan struct{})
	mb.Tell(ctx, "after-stuck", func(ctx context.Context) error {
		close(processed)
		return nil
	})

	select {
	case <-processed:
	case <-time.After(2 * time.Second):
		t.Fatal("mailbox wedged after deadline")
	}
}

// TestWorkItemErrorDoesNotWedge verifies a failing thunk delivers its
// error through the promise while the mailbox continues.
func TestWorkItemErrorDoesNotWedge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mb := newTestMailbox(t, RoleID(6))

	boom := fmt.Errorf("boom")
	fut := Ask(ctx, mb, "failing", DefaultDeadline,
		func(ctx context.Context) (int, error) {
			return 0, boom
		},
	)

	_, err := fut.Await(ctx).Unpack()
	require.ErrorIs(t, err, boom)

	val, err := Ask(ctx, mb, "next", DefaultDeadline,
		func(ctx context.Context) (int, error) {
			return 7, nil
		},
	).Await(ctx).Unpack()
	require.NoError(t, err)
	require.Equal(t, 7, val)
}

// TestWorkItemPanicContained verifies that a panicking thunk completes
// its promise with an error and the mailbox survives.
func TestWorkItemPanicContained(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mb := newTestMailbox(t, RoleID(7))

	fut := Ask(ctx, mb, "panicking", DefaultDeadline,
		func(ctx context.Context) (int, error) {
			panic("kaboom")
		},
	)

	_, err := fut.Await(ctx).Unpack()
	require.Error(t, err)
	require.Contains(t, err.Error(), "kaboom")

	val, err := Ask(ctx, mb, "next", DefaultDeadline,
		func(ctx context.Context) (int, error) {
			return 1, nil
		},
	).Await(ctx).Unpack()
	require.NoError(t, err)
	require.Equal(t, 1, val)
}

// TestStoppedMailboxReleasesQueued verifies queued items on a stopped
// mailbox complete with ErrMailboxClosed rather than hanging.
func TestStoppedMailboxReleasesQueued(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mb := NewMailbox(MailboxConfig{Owner: RoleID(8)})
	mb.Start()

	occupied := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	AskVoid(ctx, mb, "parked", NoDeadline,
		func(ctx context.Context) error {
			close(occupied)
			<-release

			return nil
		},
	)
	<-occupied

	queued := Ask(ctx, mb, "queued", DefaultDeadline,
		func(ctx context.Context) (int, error) {
			return 0, nil
		},
	)

	mb.Stop()

	_, err := queued.Await(ctx).Unpack()
	require.ErrorIs(t, err, ErrMailboxClosed)
}

// rejectAllGuard rejects every call that carries a chain.
type rejectAllGuard struct{}

func (rejectAllGuard) Allow(caller Call, target ID) error {
	if caller.Chain != 0 {
		return fmt.Errorf("rejected by guard")
	}

	return nil
}

// TestCallGuardRejection verifies the debug guard vetoes checked asks
// while the unchecked variant bypasses it.
func TestCallGuardRejection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mb := NewMailbox(MailboxConfig{
		Owner: RoleID(9),
		Guard: rejectAllGuard{},
	})
	mb.Start()
	t.Cleanup(mb.Stop)

	guardedCtx := WithCall(ctx, Call{Chain: NextChainID(), Actor: RoleID(99)})

	_, err := Ask(guardedCtx, mb, "guarded", DefaultDeadline,
		func(ctx context.Context) (int, error) {
			return 1, nil
		},
	).Await(ctx).Unpack()
	require.Error(t, err)

	val, err := askUnchecked(guardedCtx, mb, "unchecked",
		DefaultDeadline,
		func(ctx context.Context) (int, error) {
			return 2, nil
		},
	).Await(ctx).Unpack()
	require.NoError(t, err)
	require.Equal(t, 2, val)
}

// TestSerialExecutionProperty is the randomized-schedule version of the
// serial execution invariant: however many items arrive, for i < j,
// item i's promise completes before item j's thunk starts.
func TestSerialExecutionProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		mb := NewMailbox(MailboxConfig{Owner: RoleID(1000)})
		mb.Start()
		defer mb.Stop()

		numItems := rapid.IntRange(1, 30).Draw(t, "numItems")

		var startOrder []int
		var mu sync.Mutex

		futures := make([]Future[int], numItems)
		for i := 0; i < numItems; i++ {
			idx := i
			futures[i] = Ask(ctx, mb, "prop", DefaultDeadline,
				func(ctx context.Context) (int, error) {
					mu.Lock()
					startOrder = append(startOrder, idx)
					mu.Unlock()

					return idx, nil
				},
			)
		}

		for i, fut := range futures {
			val, err := fut.Await(ctx).Unpack()
			if err != nil {
				t.Fatalf("item %d failed: %v", i, err)
			}
			if val != i {
				t.Fatalf("item %d returned %d", i, val)
			}
		}

		mu.Lock()
		defer mu.Unlock()
		for i, idx := range startOrder {
			if idx != i {
				t.Fatalf("start order broken at %d: %v", i,
					startOrder)
			}
		}
	})
}
