// Package runtime hosts the actor directory and lifecycle coordination:
// lookup-or-create with a hot-window fast path, lifecycle partitions
// that serialize create/evict decisions per actor id, the idle scan,
// batched and shutdown saves, and the phased cross-day rollover.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roasbeef/gamecore/internal/actorutil"
	"github.com/roasbeef/gamecore/internal/baselib/actor"
	"github.com/roasbeef/gamecore/internal/state"
)

// Operational constants. These are fixed by design, not configuration:
// every deployment runs the same lanes and windows.
const (
	// WorkerCount is the number of lifecycle partition lanes.
	WorkerCount = 10

	// IdleHotWindow is how recently a role actor must have been
	// touched for lookups to skip the lifecycle partition entirely.
	IdleHotWindow = 10 * time.Minute

	// IdleEvictThreshold is how long a role actor must sit idle
	// before the scan deactivates and removes it.
	IdleEvictThreshold = 15 * time.Minute

	// OnceSaveCount is the batch size for the steady-state timed
	// save.
	OnceSaveCount = 1000

	// timerSavePause is the breather between timed-save batches,
	// smoothing persistence I/O.
	timerSavePause = time.Second

	// CrossDayGlobalWait bounds the wait for global actors' cross-day
	// phase.
	CrossDayGlobalWait = 60 * time.Second

	// CrossDayNotRoleWait bounds the wait for the non-role, non-global
	// cross-day phase.
	CrossDayNotRoleWait = 120 * time.Second
)

// Config holds the collaborators for constructing a Runtime.
type Config struct {
	// Source resolves component/agent bindings (a compiled registry,
	// or the hotfix manager wrapping one).
	Source actor.ComponentSource

	// Store is the persistence sink for component state.
	Store state.Store

	// Codec is the canonical state serializer. Defaults to msgpack.
	Codec state.Codec

	// Debug enables the call guard on every actor mailbox.
	Debug bool

	// Guard is the debug call permission check; only consulted when
	// Debug is set.
	Guard actor.CallGuard

	// Clock overrides wall clock reads, for tests. Defaults to
	// time.Now.
	Clock func() time.Time
}

// Runtime is the global actor directory and lifecycle coordinator. It is
// constructed once at startup, after the registry and before the timer
// driven scans.
type Runtime struct {
	cfg   Config
	env   *actor.Env
	clock func() time.Time

	// actors maps actor.ID to *actor.Actor. Lookups are safe from any
	// goroutine; role inserts are funneled through the lifecycle
	// partitions.
	actors sync.Map

	// lastActive maps role actor.ID to the last touch time. Written
	// from both the lookup fast path and the partitions; the value is
	// monotonic wall clock, so last-writer-wins is fine.
	lastActive sync.Map

	// parts are the lifecycle partition lanes.
	parts *actorutil.Partitions

	// shuttingDown is the process-wide shutdown flag, observed by
	// TimerSave.
	shuttingDown atomic.Bool

	// actorWg tracks every actor mailbox worker for deterministic
	// shutdown.
	actorWg sync.WaitGroup
}

// New constructs a runtime from the given collaborators.
func New(cfg Config) (*Runtime, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("runtime requires a component source")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("runtime requires a state store")
	}
	if cfg.Codec == nil {
		cfg.Codec = state.NewMsgpackCodec()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	env := &actor.Env{
		Source: cfg.Source,
		Store:  cfg.Store,
		Codec:  cfg.Codec,
	}
	if cfg.Debug {
		env.Guard = cfg.Guard
	}

	r := &Runtime{
		cfg:   cfg,
		env:   env,
		clock: cfg.Clock,
		parts: actorutil.NewPartitions(WorkerCount),
	}

	log.Infof("Actor runtime initialized: partitions=%d debug=%v",
		WorkerCount, cfg.Debug)

	return r, nil
}

// Lookup returns the live actor for id, if present.
func (r *Runtime) Lookup(id actor.ID) (*actor.Actor, bool) {
	if v, ok := r.actors.Load(id); ok {
		return v.(*actor.Actor), true
	}

	return nil, false
}

// ActorCount returns the number of live actors.
func (r *Runtime) ActorCount() int {
	count := 0
	r.actors.Range(func(_, _ any) bool {
		count++
		return true
	})

	return count
}

// touch refreshes the last-active timestamp for a role actor.
func (r *Runtime) touch(id actor.ID) {
	r.lastActive.Store(id, r.clock())
}

// GetOrCreate resolves the actor for id, creating it if absent.
//
// Globals are a plain insert-if-absent on the directory. Role actors
// first try the hot path: if the id was touched within the hot window
// and is still present, the lookup completes without any dispatch.
// Otherwise the lookup-and-insert is routed through the id's lifecycle
// partition, which serializes it against any concurrent idle-reap of the
// same id — a re-acquire during eviction either waits its turn and gets
// a fresh actor, or arrives first and refreshes the old one. Never a
// half-deactivated instance.
func (r *Runtime) GetOrCreate(ctx context.Context,
	id actor.ID) (*actor.Actor, error) {

	if id.Type() != actor.TypeRole {
		if a, ok := r.Lookup(id); ok {
			return a, nil
		}

		created := actor.New(id, r.env, &r.actorWg)
		existing, loaded := r.actors.LoadOrStore(id, created)
		if loaded {
			// Lost the insert race; retire the extra actor.
			created.Stop()
			return existing.(*actor.Actor), nil
		}

		log.Debugf("Actor created: id=%v", id)

		return created, nil
	}

	// Role fast path: a recently touched actor is returned without
	// going anywhere near the partitions.
	now := r.clock()
	if v, ok := r.lastActive.Load(id); ok {
		if now.Sub(v.(time.Time)) < IdleHotWindow {
			if a, ok := r.Lookup(id); ok {
				r.touch(id)
				return a, nil
			}
		}
	}

	trace := fmt.Sprintf("get-or-create:%v", id)
	fut := actor.Ask(ctx, r.parts.ByID(id), trace, actor.NoDeadline,
		func(ctx context.Context) (*actor.Actor, error) {
			if a, ok := r.Lookup(id); ok {
				r.touch(id)
				return a, nil
			}

			a := actor.New(id, r.env, &r.actorWg)
			r.actors.Store(id, a)
			r.touch(id)

			log.Debugf("Role actor created: id=%v", id)

			return a, nil
		},
	)

	return fut.Await(ctx).Unpack()
}

// AgentOf resolves the agent for a global actor by agent type, creating
// and activating actor and component as needed.
func (r *Runtime) AgentOf(ctx context.Context,
	agentType actor.AgentType) (actor.Agent, error) {

	actorType, err := r.actorTypeOfAgent(agentType)
	if err != nil {
		return nil, err
	}
	if actorType == actor.TypeRole {
		return nil, fmt.Errorf("agent %s belongs to role actors, "+
			"use RoleAgentOf", agentType)
	}

	a, err := r.GetOrCreate(ctx, actor.GlobalID(actorType))
	if err != nil {
		return nil, err
	}

	return a.GetAgent(ctx, agentType)
}

// RoleAgentOf resolves the agent for a player's role actor by agent
// type.
func (r *Runtime) RoleAgentOf(ctx context.Context, playerID uint64,
	agentType actor.AgentType) (actor.Agent, error) {

	actorType, err := r.actorTypeOfAgent(agentType)
	if err != nil {
		return nil, err
	}
	if actorType != actor.TypeRole {
		return nil, fmt.Errorf("agent %s does not belong to role "+
			"actors", agentType)
	}

	a, err := r.GetOrCreate(ctx, actor.RoleID(playerID))
	if err != nil {
		return nil, err
	}

	return a.GetAgent(ctx, agentType)
}

// actorTypeOfAgent maps an agent type to its owning actor type via the
// active component source.
func (r *Runtime) actorTypeOfAgent(
	agentType actor.AgentType) (actor.Type, error) {

	comp, ok := r.cfg.Source.ComponentOf(agentType)
	if !ok {
		return actor.TypeNone, fmt.Errorf("%w: %s",
			actor.ErrAgentUnknown, agentType)
	}

	actorType, ok := r.cfg.Source.ActorTypeOf(comp)
	if !ok {
		return actor.TypeNone, fmt.Errorf("%w: component %s has "+
			"no actor binding", actor.ErrAgentUnknown, comp)
	}

	return actorType, nil
}

// snapshot returns the current set of live actors.
func (r *Runtime) snapshot() []*actor.Actor {
	var out []*actor.Actor
	r.actors.Range(func(_, v any) bool {
		out = append(out, v.(*actor.Actor))
		return true
	})

	return out
}

// ForEachOfType broadcasts fire-and-forget work to the agent of every
// live actor owning the given agent type. The work runs on each actor's
// own mailbox.
func (r *Runtime) ForEachOfType(ctx context.Context,
	agentType actor.AgentType,
	work func(ctx context.Context, agent actor.Agent) error) error {

	actorType, err := r.actorTypeOfAgent(agentType)
	if err != nil {
		return err
	}

	trace := fmt.Sprintf("for-each:%s", agentType)
	for _, a := range r.snapshot() {
		if a.Type() != actorType {
			continue
		}

		target := a
		target.Mailbox().Tell(ctx, trace,
			func(ctx context.Context) error {
				// Running on the target's mailbox already,
				// so the agent lookup rides the inline
				// reentrancy path.
				agent, err := target.GetAgent(ctx, agentType)
				if err != nil {
					return err
				}

				return work(ctx, agent)
			},
		)
	}

	return nil
}

// ForEachOfTypeAsync is ForEachOfType for work that is itself
// asynchronous: the broadcast item stays bound to its mailbox until the
// returned future resolves, so per-actor ordering still holds around it.
func (r *Runtime) ForEachOfTypeAsync(ctx context.Context,
	agentType actor.AgentType,
	work func(ctx context.Context,
		agent actor.Agent) actor.Future[any]) error {

	actorType, err := r.actorTypeOfAgent(agentType)
	if err != nil {
		return err
	}

	trace := fmt.Sprintf("for-each-async:%s", agentType)
	for _, a := range r.snapshot() {
		if a.Type() != actorType {
			continue
		}

		target := a
		target.Mailbox().Tell(ctx, trace,
			func(ctx context.Context) error {
				agent, err := target.GetAgent(ctx, agentType)
				if err != nil {
					return err
				}

				_, err = work(ctx, agent).Await(ctx).Unpack()

				return err
			},
		)
	}

	return nil
}

// BeginShutdown raises the process-wide shutdown flag. TimerSave aborts
// on it; the shutdown path's SaveAllNow covers the remainder.
func (r *Runtime) BeginShutdown() {
	r.shuttingDown.Store(true)
}

// IsShuttingDown reports the shutdown flag.
func (r *Runtime) IsShuttingDown() bool {
	return r.shuttingDown.Load()
}

// Stop terminates the lifecycle partitions and waits for all actor
// workers to exit. Callers run RemoveAll first; Stop persists nothing.
func (r *Runtime) Stop() {
	r.parts.Stop()
	r.actorWg.Wait()
}
