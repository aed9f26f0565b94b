package actor

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/roasbeef/gamecore/internal/state"
)

// Component is the (state, agent) pair an actor owns for one feature.
// Components are created lazily on first agent lookup, activated by
// loading their state from the store, mutated only through agent calls
// running on the owning mailbox, saved when their serialization drifts,
// and deactivated with a final save before their actor is recycled.
//
// Every method on Component must be called from the owning actor's
// mailbox.
type Component struct {
	// actor is the owning actor (non-owning back reference).
	actor *Actor

	// typ is the component's registered type.
	typ ComponentType

	// st is the durable state object.
	st state.State

	// active reports whether Activate completed successfully.
	active bool

	// agent is the cached behavior facade, nil until first resolved
	// or after a cache clear.
	agent Agent
}

// NewComponent builds a component for the given actor. Called by the
// registry, which has already asserted the type is registered for the
// actor's type; the state arrives with its durable id assigned.
func NewComponent(a *Actor, typ ComponentType, st state.State) *Component {
	return &Component{
		actor: a,
		typ:   typ,
		st:    st,
	}
}

// Actor returns the owning actor.
func (c *Component) Actor() *Actor {
	return c.actor
}

// Type returns the component's registered type.
func (c *Component) Type() ComponentType {
	return c.typ
}

// State returns the component's state object. Callers type-assert to
// their concrete state; the invariant that state is only touched on the
// owning mailbox is theirs to keep.
func (c *Component) State() state.State {
	return c.st
}

// IsActive reports whether the component has been activated.
func (c *Component) IsActive() bool {
	return c.active
}

// serialize writes the state's canonical form to w using the runtime's
// codec. This is the single serialization path shared by change
// detection and persistence, so the digest always matches the bytes
// written to the store.
func (c *Component) serialize(w io.Writer) error {
	return c.actor.env.Codec.Encode(w, c.st)
}

// Activate loads the component's state from the store, seeds the change
// detector from the loaded serialization, and runs the agent's
// activation hook. An error leaves the component inactive so the next
// access retries; first-touch failures are never swallowed.
func (c *Component) Activate(ctx context.Context) error {
	if c.active {
		return nil
	}

	env := c.actor.env
	stateID := c.st.StateID()

	data, found, err := env.Store.LoadByID(
		ctx, string(c.typ), stateID,
	)
	if err != nil {
		return fmt.Errorf("load state %s/%d: %w", c.typ, stateID,
			err)
	}

	if found {
		err := env.Codec.Decode(bytes.NewReader(data), c.st)
		if err != nil {
			return fmt.Errorf("decode state %s/%d: %w", c.typ,
				stateID, err)
		}

		// Decoding replaces every serialized field, including the
		// id column of an older row shape; reassert the durable
		// id the component was created with.
		c.st.SetStateID(stateID)
	}

	// Seed the change baseline from the just-loaded form so an
	// untouched component never writes back.
	c.st.Detector().Seed(c.serialize)

	if act, ok := c.resolveAgent().(Activator); ok {
		if err := act.OnActivate(ctx); err != nil {
			return fmt.Errorf("activate %s/%d: %w", c.typ,
				stateID, err)
		}
	}

	c.active = true

	log.Debugf("Component activated: comp=%s actor=%v loaded=%v",
		c.typ, c.actor.id, found)

	return nil
}

// Save persists the state if its serialization has drifted since the
// last successful persist. On a store failure the persisted baseline is
// left behind so the next save retries.
func (c *Component) Save(ctx context.Context) error {
	if !c.active {
		return nil
	}

	det := c.st.Detector()
	if !det.IsChanged(c.serialize) {
		return nil
	}

	var buf bytes.Buffer
	if err := c.serialize(&buf); err != nil {
		return fmt.Errorf("serialize state %s/%d: %w", c.typ,
			c.st.StateID(), err)
	}

	err := c.actor.env.Store.Upsert(
		ctx, string(c.typ), c.st.StateID(), buf.Bytes(),
	)
	if err != nil {
		log.Errorf("State save failed, will retry on next save: "+
			"comp=%s actor=%v: %v", c.typ, c.actor.id, err)

		return err
	}

	det.MarkPersisted()

	log.Debugf("Component saved: comp=%s actor=%v bytes=%d", c.typ,
		c.actor.id, buf.Len())

	return nil
}

// Deactivate runs the agent's deactivation hook, performs the final
// save, and releases the cached agent. Idempotent.
func (c *Component) Deactivate(ctx context.Context) error {
	if !c.active {
		return nil
	}

	if deact, ok := c.resolveAgent().(Deactivator); ok {
		if err := deact.OnDeactivate(ctx); err != nil {
			log.Errorf("Deactivation hook failed: comp=%s "+
				"actor=%v: %v", c.typ, c.actor.id, err)
		}
	}

	if err := c.Save(ctx); err != nil {
		return err
	}

	c.active = false
	c.agent = nil

	return nil
}

// CrossDay invokes the agent's cross-day hook if it has one.
func (c *Component) CrossDay(ctx context.Context,
	openServerDay int) error {

	crosser, ok := c.resolveAgent().(CrossDayer)
	if !ok {
		return nil
	}

	return crosser.OnCrossDay(ctx, openServerDay)
}

// ReadyToDeactivate reports whether the component is quiescent.
func (c *Component) ReadyToDeactivate() bool {
	if q, ok := c.resolveAgent().(Quiescent); ok {
		return q.ReadyToDeactivate()
	}

	return true
}

// ClearAgentCache drops the cached agent so the next access re-resolves
// it from the currently active registry.
func (c *Component) ClearAgentCache() {
	c.agent = nil
}

// resolveAgent returns the cached agent, building and binding a fresh
// one from the component source when the cache is empty.
func (c *Component) resolveAgent() Agent {
	if c.agent != nil {
		return c.agent
	}

	agent, err := c.actor.env.Source.NewAgent(c.typ)
	if err != nil {
		// Registration is validated at compile time, so this only
		// trips if a hot reload removed the binding mid-flight.
		log.Errorf("Agent resolution failed: comp=%s actor=%v: %v",
			c.typ, c.actor.id, err)

		return nil
	}

	agent.Bind(c)
	c.agent = agent

	return agent
}

// Agent returns the component's behavior facade, resolving it on first
// use.
func (c *Component) Agent() Agent {
	return c.resolveAgent()
}
