package actor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roasbeef/gamecore/internal/state"
)

// Env bundles the collaborators every actor needs: the component source
// (registry or hotfix manager), the persistence store, the canonical
// codec, and the optional debug call guard. One Env is shared by all
// actors of a runtime.
type Env struct {
	// Source resolves component and agent bindings.
	Source ComponentSource

	// Store is the object-addressed persistence sink.
	Store state.Store

	// Codec is the canonical state serializer.
	Codec state.Codec

	// Guard, when non-nil, vetoes forbidden cross-actor calls. Only
	// set in debug mode.
	Guard CallGuard
}

// Actor is a logical identity whose state mutates only under its
// mailbox's serial discipline: one id, one mailbox, and a lazily
// populated set of owned components. The component map is read and
// written exclusively from the mailbox.
type Actor struct {
	// id is the composite actor identity.
	id ID

	// mb is the actor's single mailbox.
	mb *Mailbox

	// env holds the shared collaborators.
	env *Env

	// comps maps component type to the owned component. Mailbox only.
	comps map[ComponentType]*Component

	// autoRecycle marks the actor for idle eviction. Defaults to true
	// for role actors, false otherwise.
	autoRecycle atomic.Bool

	// schedules holds cancel functions for timers this actor owns,
	// keyed by schedule id. Mailbox only; all are cancelled on
	// deactivation.
	schedules map[string]func()
}

// New creates an actor with a started mailbox. Role actors default to
// auto-recycle.
func New(id ID, env *Env, wg *sync.WaitGroup) *Actor {
	a := &Actor{
		id:        id,
		env:       env,
		comps:     make(map[ComponentType]*Component),
		schedules: make(map[string]func()),
	}

	a.mb = NewMailbox(MailboxConfig{
		Owner: id,
		Guard: env.Guard,
		Wg:    wg,
	})
	a.mb.Start()

	a.autoRecycle.Store(id.Type() == TypeRole)

	return a
}

// ID returns the actor's composite identity.
func (a *Actor) ID() ID {
	return a.id
}

// Type returns the actor type encoded in the id.
func (a *Actor) Type() Type {
	return a.id.Type()
}

// Mailbox returns the actor's mailbox for direct work submission.
func (a *Actor) Mailbox() *Mailbox {
	return a.mb
}

// AutoRecycle reports whether the actor is eligible for idle eviction.
func (a *Actor) AutoRecycle() bool {
	return a.autoRecycle.Load()
}

// SetAutoRecycle updates eviction eligibility. The write is posted onto
// the mailbox so it serializes with lifecycle work already in flight.
func (a *Actor) SetAutoRecycle(ctx context.Context, recycle bool) {
	a.mb.Tell(ctx, "set-auto-recycle",
		func(ctx context.Context) error {
			a.autoRecycle.Store(recycle)
			return nil
		},
	)
}

// GetAgent resolves the agent facade for the given agent type, creating
// and activating the backing component on first touch. Activation errors
// propagate to the caller and leave the component inactive so the next
// call retries.
//
// The lookup rides an unchecked ask: agent resolution frequently happens
// from within one of the actor's own work items (a handler fetching a
// sibling component), where the reentrancy rule runs it inline, and it
// must also be admitted under debug guard policies that would reject the
// originating call pattern.
func (a *Actor) GetAgent(ctx context.Context,
	agentType AgentType) (Agent, error) {

	compType, ok := a.env.Source.ComponentOf(agentType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentUnknown, agentType)
	}

	trace := fmt.Sprintf("get-agent:%s", agentType)
	fut := askUnchecked(ctx, a.mb, trace, NoDeadline,
		func(ctx context.Context) (Agent, error) {
			comp := a.comps[compType]
			if comp == nil {
				var err error
				comp, err = a.env.Source.NewComponent(
					a, compType,
				)
				if err != nil {
					return nil, err
				}

				a.comps[compType] = comp
			}

			if !comp.IsActive() {
				if err := comp.Activate(ctx); err != nil {
					return nil, err
				}
			}

			return comp.Agent(), nil
		},
	)

	return fut.Await(ctx).Unpack()
}

// ActivateAll creates and activates every component registered for this
// actor's type. Used for actors whose full component set must be hot
// before a broadcast reaches them, such as the cross-day driver.
func (a *Actor) ActivateAll(ctx context.Context) error {
	fut := askUnchecked(ctx, a.mb, "activate-all", NoDeadline,
		func(ctx context.Context) (any, error) {
			for _, ct := range a.env.Source.ComponentsOf(a.Type()) {
				comp := a.comps[ct]
				if comp == nil {
					var err error
					comp, err = a.env.Source.NewComponent(
						a, ct,
					)
					if err != nil {
						return nil, err
					}

					a.comps[ct] = comp
				}

				if !comp.IsActive() {
					err := comp.Activate(ctx)
					if err != nil {
						return nil, err
					}
				}
			}

			return nil, nil
		},
	)

	_, err := fut.Await(ctx).Unpack()

	return err
}

// SaveAll asks the actor to save every component; unchanged state is
// skipped by each component's change detector. The returned future
// resolves once all components were attempted; the first error is
// reported after the remaining components have still been tried.
func (a *Actor) SaveAll(ctx context.Context) Future[any] {
	return AskVoidNoDeadline(ctx, a.mb, "save-all",
		func(ctx context.Context) error {
			var firstErr error
			for _, comp := range a.comps {
				if err := comp.Save(ctx); err != nil {
					if firstErr == nil {
						firstErr = err
					}
				}
			}

			return firstErr
		},
	)
}

// Deactivate cancels owned schedules and deactivates every component
// (final save included). Idempotent; component order is not preserved
// across runs. An error from any component is reported so callers (the
// idle reaper, shutdown) know state may still be unsaved.
func (a *Actor) Deactivate(ctx context.Context) Future[any] {
	return AskVoidNoDeadline(ctx, a.mb, "deactivate",
		func(ctx context.Context) error {
			a.cancelSchedules()

			var firstErr error
			for _, comp := range a.comps {
				err := comp.Deactivate(ctx)
				if err != nil && firstErr == nil {
					firstErr = err
				}
			}

			return firstErr
		},
	)
}

// CrossDay dispatches the day rollover to every component whose agent
// implements the cross-day capability. An exception in one component is
// logged and does not prevent the others from running.
func (a *Actor) CrossDay(ctx context.Context,
	openServerDay int) Future[any] {

	return AskVoidNoDeadline(ctx, a.mb, "cross-day",
		func(ctx context.Context) error {
			for _, comp := range a.comps {
				err := comp.CrossDay(ctx, openServerDay)
				if err != nil {
					log.Errorf("Cross-day failed: "+
						"comp=%s actor=%v day=%d: %v",
						comp.Type(), a.id,
						openServerDay, err)
				}
			}

			return nil
		},
	)
}

// ReadyToDeactivate reports whether every component is quiescent. False
// while any component still has in-flight business.
func (a *Actor) ReadyToDeactivate(ctx context.Context) bool {
	fut := Ask(ctx, a.mb, "ready-to-deactivate", DefaultDeadline,
		func(ctx context.Context) (bool, error) {
			for _, comp := range a.comps {
				if !comp.ReadyToDeactivate() {
					return false, nil
				}
			}

			return true, nil
		},
	)

	ready, err := fut.Await(ctx).Unpack()
	if err != nil {
		// If the actor is too busy to even answer, it is not ready
		// to go away.
		return false
	}

	return ready
}

// ClearAgentCache drops every component's cached agent so the next
// access re-resolves it. Posted as a work item so no in-flight item
// observes a torn agent.
func (a *Actor) ClearAgentCache(ctx context.Context) {
	a.mb.Tell(ctx, "clear-agent-cache",
		func(ctx context.Context) error {
			for _, comp := range a.comps {
				comp.ClearAgentCache()
			}

			return nil
		},
	)
}

// OwnSchedule records a timer owned by this actor so it is cancelled on
// deactivation. The registration is posted onto the mailbox.
func (a *Actor) OwnSchedule(ctx context.Context, scheduleID string,
	cancel func()) {

	a.mb.Tell(ctx, "own-schedule",
		func(ctx context.Context) error {
			a.schedules[scheduleID] = cancel
			return nil
		},
	)
}

// DisownSchedule removes a schedule registration without firing its
// cancel function (the timer already completed).
func (a *Actor) DisownSchedule(ctx context.Context, scheduleID string) {
	a.mb.Tell(ctx, "disown-schedule",
		func(ctx context.Context) error {
			delete(a.schedules, scheduleID)
			return nil
		},
	)
}

// cancelSchedules fires and clears every owned schedule cancel. Mailbox
// only.
func (a *Actor) cancelSchedules() {
	for id, cancel := range a.schedules {
		cancel()
		delete(a.schedules, id)
	}
}

// ComponentCount returns the number of components the actor currently
// owns. Answered through the mailbox.
func (a *Actor) ComponentCount(ctx context.Context) int {
	fut := Ask(ctx, a.mb, "component-count", DefaultDeadline,
		func(ctx context.Context) (int, error) {
			return len(a.comps), nil
		},
	)

	count, err := fut.Await(ctx).Unpack()
	if err != nil {
		return 0
	}

	return count
}

// Stop terminates the actor's mailbox. Pending queued work is released
// with ErrMailboxClosed. Callers deactivate first; Stop itself persists
// nothing.
func (a *Actor) Stop() {
	a.mb.Stop()
}
