package actorutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"

	"github.com/roasbeef/gamecore/internal/baselib/actor"
)

// TestAskAwait verifies the blocking ask helper unpacks the result.
func TestAskAwait(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mb := actor.NewMailbox(actor.MailboxConfig{Owner: actor.RoleID(1)})
	mb.Start()
	t.Cleanup(mb.Stop)

	val, err := AskAwait(ctx, mb, "ask-await", actor.DefaultDeadline,
		func(ctx context.Context) (int, error) {
			return 9, nil
		},
	)
	require.NoError(t, err)
	require.Equal(t, 9, val)
}

// TestAwaitAllOrder verifies results come back in input order.
func TestAwaitAllOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	futures := make([]actor.Future[int], 5)
	for i := range futures {
		futures[i] = actor.CompletedFuture(fn.Ok(i))
	}

	results := AwaitAll(ctx, futures)
	require.Len(t, results, 5)
	for i, r := range results {
		val, err := r.Unpack()
		require.NoError(t, err)
		require.Equal(t, i, val)
	}
}

// TestAwaitAllTimeoutBudget verifies the shared budget semantics: fast
// futures pass, a straggler trips ErrAwaitTimeout.
func TestAwaitAllTimeoutBudget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	fast := actor.CompletedFuture(fn.Ok[any](nil))
	require.NoError(t, AwaitAllTimeout(
		ctx, []actor.Future[any]{fast, fast}, time.Second,
	))

	straggler := actor.NewPromise[any]()
	err := AwaitAllTimeout(
		ctx,
		[]actor.Future[any]{fast, straggler.Future()},
		100*time.Millisecond,
	)
	require.ErrorIs(t, err, ErrAwaitTimeout)

	// Empty input never waits.
	require.NoError(t, AwaitAllTimeout[any](
		ctx, nil, time.Nanosecond,
	))
}

// TestResultCombinators verifies CollectSuccesses, FirstError, and
// AllSucceeded.
func TestResultCombinators(t *testing.T) {
	t.Parallel()

	boom := fmt.Errorf("boom")
	results := []fn.Result[int]{
		fn.Ok(1),
		fn.Err[int](boom),
		fn.Ok(3),
	}

	require.Equal(t, []int{1, 3}, CollectSuccesses(results))
	require.ErrorIs(t, FirstError(results), boom)
	require.False(t, AllSucceeded(results))

	clean := []fn.Result[int]{fn.Ok(1), fn.Ok(2)}
	require.NoError(t, FirstError(clean))
	require.True(t, AllSucceeded(clean))
}

// TestPartitionsStableMapping verifies id-to-lane mapping is stable and
// lanes execute work.
func TestPartitionsStableMapping(t *testing.T) {
	t.Parallel()

	parts := NewPartitions(10)
	t.Cleanup(parts.Stop)

	require.Equal(t, 10, parts.Size())

	id := actor.RoleID(12345)
	lane := parts.ByID(id)
	for i := 0; i < 50; i++ {
		require.Same(t, lane, parts.ByID(id),
			"lane mapping drifted")
	}

	ctx := context.Background()
	val, err := AskAwait(ctx, lane, "lane-work", actor.DefaultDeadline,
		func(ctx context.Context) (string, error) {
			return "done", nil
		},
	)
	require.NoError(t, err)
	require.Equal(t, "done", val)
}
