// Package registry maps the plugin surface onto the actor runtime: which
// component types belong to which actor type, which feature a component
// belongs to, and how to build each component's state and agent. The
// runtime has no runtime reflection over plugins; modules declare their
// bindings explicitly on a Table at load time and the table is compiled
// into an immutable Registry.
package registry

import (
	"fmt"

	"github.com/roasbeef/gamecore/internal/baselib/actor"
	"github.com/roasbeef/gamecore/internal/state"
)

// FeatureID names a game feature a role component belongs to, used to
// gate component sets per feature flag.
type FeatureID string

// Binding declares one component class: its owning actor type, the agent
// type fronting it, optional feature membership, and the factories for
// its state and agent.
type Binding struct {
	// ActorType is the actor type the component is registered for.
	// Required.
	ActorType actor.Type

	// Component is the component type being declared. Required.
	Component actor.ComponentType

	// Agent is the agent type bound to this component via its state
	// binding. Required.
	Agent actor.AgentType

	// Feature is the owning feature; only meaningful for role
	// components.
	Feature FeatureID

	// NewState builds a zero state object. Required.
	NewState func() state.State

	// NewAgent builds a fresh, unbound agent. Required.
	NewAgent func() actor.Agent
}

// Table accumulates bindings during module registration. A Table is not
// safe for concurrent use; modules register sequentially at load time.
type Table struct {
	bindings []Binding
}

// NewTable returns an empty registration table.
func NewTable() *Table {
	return &Table{}
}

// Register appends a binding declaration.
func (t *Table) Register(b Binding) {
	t.bindings = append(t.bindings, b)
}

// Registry is the compiled, immutable view of a registration table. It
// implements actor.ComponentSource.
type Registry struct {
	compsByActor   map[actor.Type][]actor.ComponentType
	actorByComp    map[actor.ComponentType]actor.Type
	compsByFeature map[FeatureID][]actor.ComponentType
	featureByComp  map[actor.ComponentType]FeatureID
	compByAgent    map[actor.AgentType]actor.ComponentType
	bindings       map[actor.ComponentType]Binding
}

// Compile validates a table and builds the lookup maps. It fails if any
// binding lacks an actor type, a state factory, or an agent factory, or
// if a component or agent type is declared twice: these are startup
// configuration errors and must abort before any actor is created.
func Compile(t *Table) (*Registry, error) {
	r := &Registry{
		compsByActor:   make(map[actor.Type][]actor.ComponentType),
		actorByComp:    make(map[actor.ComponentType]actor.Type),
		compsByFeature: make(map[FeatureID][]actor.ComponentType),
		featureByComp:  make(map[actor.ComponentType]FeatureID),
		compByAgent:    make(map[actor.AgentType]actor.ComponentType),
		bindings:       make(map[actor.ComponentType]Binding),
	}

	for _, b := range t.bindings {
		if b.Component == "" {
			return nil, fmt.Errorf("binding with empty " +
				"component type")
		}
		if b.ActorType == actor.TypeNone ||
			b.ActorType == actor.TypeSeparator {

			return nil, fmt.Errorf("component %s has no valid "+
				"actor type binding", b.Component)
		}
		if b.Agent == "" {
			return nil, fmt.Errorf("component %s has no agent "+
				"implementation", b.Component)
		}
		if b.NewState == nil {
			return nil, fmt.Errorf("component %s has no state "+
				"factory", b.Component)
		}
		if b.NewAgent == nil {
			return nil, fmt.Errorf("component %s has no agent "+
				"factory", b.Component)
		}

		if _, dup := r.bindings[b.Component]; dup {
			return nil, fmt.Errorf("component %s registered "+
				"twice", b.Component)
		}
		if prev, dup := r.compByAgent[b.Agent]; dup {
			return nil, fmt.Errorf("agent %s bound to both %s "+
				"and %s", b.Agent, prev, b.Component)
		}

		r.bindings[b.Component] = b
		r.compsByActor[b.ActorType] = append(
			r.compsByActor[b.ActorType], b.Component,
		)
		r.actorByComp[b.Component] = b.ActorType
		r.compByAgent[b.Agent] = b.Component

		// Feature membership is a role-actor concept.
		if b.Feature != "" && b.ActorType == actor.TypeRole {
			r.compsByFeature[b.Feature] = append(
				r.compsByFeature[b.Feature], b.Component,
			)
			r.featureByComp[b.Component] = b.Feature
		}
	}

	log.Infof("Component registry compiled: components=%d "+
		"actor_types=%d features=%d", len(r.bindings),
		len(r.compsByActor), len(r.compsByFeature))

	return r, nil
}

// ComponentOf resolves the component type an agent type is bound to.
func (r *Registry) ComponentOf(
	agent actor.AgentType) (actor.ComponentType, bool) {

	comp, ok := r.compByAgent[agent]
	return comp, ok
}

// ActorTypeOf resolves the actor type a component type is registered
// for.
func (r *Registry) ActorTypeOf(
	comp actor.ComponentType) (actor.Type, bool) {

	t, ok := r.actorByComp[comp]
	return t, ok
}

// ComponentsOf returns the component types registered for an actor type.
func (r *Registry) ComponentsOf(
	t actor.Type) []actor.ComponentType {

	return r.compsByActor[t]
}

// FeatureComponents returns the role component types owned by a feature.
func (r *Registry) FeatureComponents(
	f FeatureID) []actor.ComponentType {

	return r.compsByFeature[f]
}

// FeatureOf returns the feature a component belongs to, if any.
func (r *Registry) FeatureOf(
	comp actor.ComponentType) (FeatureID, bool) {

	f, ok := r.featureByComp[comp]
	return f, ok
}

// NewComponent instantiates the component for the given actor, asserting
// the component type is registered to the actor's type. The fresh
// state's durable id is the actor's id.
func (r *Registry) NewComponent(a *actor.Actor,
	comp actor.ComponentType) (*actor.Component, error) {

	b, ok := r.bindings[comp]
	if !ok {
		return nil, fmt.Errorf("%w: %s",
			actor.ErrComponentNotRegistered, comp)
	}

	if b.ActorType != a.Type() {
		return nil, fmt.Errorf("%w: %s is bound to actor type %v, "+
			"not %v", actor.ErrComponentNotRegistered, comp,
			b.ActorType, a.Type())
	}

	st := b.NewState()
	st.SetStateID(int64(a.ID()))

	return actor.NewComponent(a, comp, st), nil
}

// NewAgent instantiates a fresh, unbound agent for the component type.
func (r *Registry) NewAgent(
	comp actor.ComponentType) (actor.Agent, error) {

	b, ok := r.bindings[comp]
	if !ok {
		return nil, fmt.Errorf("%w: %s",
			actor.ErrComponentNotRegistered, comp)
	}

	return b.NewAgent(), nil
}

// Ensure Registry implements the actor package's component source.
var _ actor.ComponentSource = (*Registry)(nil)
