package actor

import (
	"context"
	"sync/atomic"
	"time"
)

// Call identifies the logical call currently executing: the chain id
// shared by every frame of one logical call, and the id of the actor
// whose mailbox installed it. A zero Chain means the call originates
// outside any actor.
type Call struct {
	// Chain is the call chain id, or 0 for "no active chain".
	Chain uint64

	// Actor is the id of the actor whose mailbox installed this
	// context.
	Actor ID
}

// callCtxKey is the private context key for the installed Call.
type callCtxKey struct{}

// WithCall returns a context carrying the given call association. The
// mailbox installs this on entry to every work item; nested calls see
// the value installed by their innermost enclosing mailbox.
func WithCall(ctx context.Context, call Call) context.Context {
	return context.WithValue(ctx, callCtxKey{}, call)
}

// CallOf returns the call association carried by ctx, or the zero Call
// if the context was created outside any actor.
func CallOf(ctx context.Context) Call {
	if call, ok := ctx.Value(callCtxKey{}).(Call); ok {
		return call
	}

	return Call{}
}

// ChainID is shorthand for CallOf(ctx).Chain.
func ChainID(ctx context.Context) uint64 {
	return CallOf(ctx).Chain
}

// chainCounter is the process-wide chain id allocator. It is seeded from
// wall-clock nanos at startup; uniqueness only needs to hold within one
// process lifetime.
var chainCounter atomic.Uint64

func init() {
	chainCounter.Store(uint64(time.Now().UnixNano()))
}

// NextChainID returns a fresh, monotonically increasing chain id. It
// never returns 0, which is reserved for "no active chain".
func NextChainID() uint64 {
	for {
		id := chainCounter.Add(1)
		if id != 0 {
			return id
		}
	}
}
