// Package actor implements the per-entity serial execution core of the
// game server runtime: call-chain contexts, work items, the reentrancy
// aware mailbox, and the actor/component/agent lifecycle. Every logical
// entity processes its work strictly one item at a time while thousands
// of entities run concurrently.
package actor

import (
	"context"
	"fmt"
)

var (
	// ErrMailboxClosed indicates that work could not be accepted or
	// completed because the target mailbox has shut down.
	ErrMailboxClosed = fmt.Errorf("mailbox closed")

	// ErrDeadlineForced indicates that a work item's promise was
	// force-completed because its deadline elapsed. The underlying
	// thunk was not cancelled and may still be running detached.
	ErrDeadlineForced = fmt.Errorf("work item deadline forced")

	// ErrComponentNotRegistered indicates a component type that is not
	// registered for the target actor's type.
	ErrComponentNotRegistered = fmt.Errorf("component not registered")

	// ErrAgentUnknown indicates an agent type with no component
	// binding in the active registry.
	ErrAgentUnknown = fmt.Errorf("agent type unknown")
)

// ComponentType names a component class. Components are registered per
// actor type; an actor owns at most one component of each type.
type ComponentType string

// AgentType names an agent class. Each agent type is bound to exactly
// one component type via its declared state binding at registration
// time.
type AgentType string

// Agent is the hot-swappable behavior facade in front of a component's
// state. Agents are created by the registry's factory, bound to their
// component once, and MUST be side-effect-only: a cached agent instance
// may be invalidated by a cache clear at any moment between work items.
//
// Agents may additionally implement any of the optional capability
// interfaces below to hook lifecycle transitions.
type Agent interface {
	// Bind attaches the agent to its owning component. Called exactly
	// once, before any other method.
	Bind(comp *Component)
}

// Activator is implemented by agents that need a hook when their
// component is activated (state freshly loaded from the store).
type Activator interface {
	// OnActivate runs on the owning mailbox right after the state is
	// loaded. An error fails the activation; the component stays
	// inactive so the next access retries.
	OnActivate(ctx context.Context) error
}

// Deactivator is implemented by agents that need a hook before their
// component's final save on deactivation.
type Deactivator interface {
	// OnDeactivate runs on the owning mailbox before the final save.
	OnDeactivate(ctx context.Context) error
}

// CrossDayer is implemented by agents that participate in the server's
// day rollover.
type CrossDayer interface {
	// OnCrossDay runs on the owning mailbox when the server day
	// advances. openServerDay is the number of days since server
	// open.
	OnCrossDay(ctx context.Context, openServerDay int) error
}

// Quiescent is implemented by agents that can veto deactivation while
// they still have in-flight business (pending trades, unacked rewards).
// Components whose agent does not implement this are always considered
// quiescent.
type Quiescent interface {
	// ReadyToDeactivate reports whether the component may be
	// deactivated now.
	ReadyToDeactivate() bool
}

// ComponentSource resolves agent and component bindings for actors. The
// registry implements it directly; the hotfix manager implements it by
// delegating to whichever registry is currently active, which is what
// makes agents hot-swappable.
type ComponentSource interface {
	// ComponentOf resolves the component type an agent type is bound
	// to.
	ComponentOf(agent AgentType) (ComponentType, bool)

	// ActorTypeOf resolves the actor type a component type is
	// registered for.
	ActorTypeOf(comp ComponentType) (Type, bool)

	// ComponentsOf lists the component types registered for an actor
	// type.
	ComponentsOf(t Type) []ComponentType

	// NewComponent instantiates the component for the given actor,
	// asserting the component is registered for the actor's type.
	NewComponent(a *Actor, comp ComponentType) (*Component, error)

	// NewAgent instantiates a fresh, unbound agent for the component
	// type.
	NewAgent(comp ComponentType) (Agent, error)
}

// CallGuard is the debug-mode call permission check. When the runtime
// runs with the debug flag set, every enqueue through a checked ask is
// first offered to the guard, which can reject forbidden cross-actor
// call patterns during development.
type CallGuard interface {
	// Allow returns an error if the call from the given caller
	// context into the target actor must be rejected.
	Allow(caller Call, target ID) error
}
