package logic

import (
	"context"
	"time"

	"github.com/roasbeef/gamecore/internal/baselib/actor"
	"github.com/roasbeef/gamecore/internal/state"
)

const (
	// ServerInfoComponent is the server info component type.
	ServerInfoComponent actor.ComponentType = "server.info"

	// ServerInfoAgentType is the agent type fronting server info
	// state.
	ServerInfoAgentType actor.AgentType = "server.info.agent"
)

// ServerInfoState is the server-wide date counter. Its owning actor is
// the nominated cross-day driver: every other actor's rollover reads the
// day this component has already committed.
type ServerInfoState struct {
	state.Base `msgpack:",inline"`

	// OpenServerAt is the unix time the server first opened. Zero
	// until the first activation stamps it.
	OpenServerAt int64 `msgpack:"open_server_at"`

	// CurrentDay is the last committed open-server day.
	CurrentDay int `msgpack:"current_day"`
}

// ServerInfoAgent is the behavior facade over ServerInfoState.
type ServerInfoAgent struct {
	comp *actor.Component
}

// NewServerInfoAgent builds an unbound agent; the component binds it.
func NewServerInfoAgent() actor.Agent {
	return &ServerInfoAgent{}
}

// Bind attaches the agent to its owning component.
//
// NOTE: This implements the actor.Agent interface.
func (g *ServerInfoAgent) Bind(comp *actor.Component) {
	g.comp = comp
}

func (g *ServerInfoAgent) st() *ServerInfoState {
	return g.comp.State().(*ServerInfoState)
}

// OnActivate stamps the server open time on the very first activation.
//
// NOTE: This implements the actor.Activator interface.
func (g *ServerInfoAgent) OnActivate(ctx context.Context) error {
	st := g.st()
	if st.OpenServerAt == 0 {
		st.OpenServerAt = time.Now().Unix()
		st.CurrentDay = 1
	}

	return nil
}

// OnCrossDay commits the new day. As the driver, this runs before any
// other actor's cross-day hook.
//
// NOTE: This implements the actor.CrossDayer interface.
func (g *ServerInfoAgent) OnCrossDay(ctx context.Context,
	openServerDay int) error {

	g.st().CurrentDay = openServerDay

	return nil
}

// OpenServerDay computes the 1-based day number for the given instant,
// relative to the server open time.
func (g *ServerInfoAgent) OpenServerDay(ctx context.Context,
	now time.Time) (int, error) {

	mb := g.comp.Actor().Mailbox()
	fut := actor.Ask(ctx, mb, "server.open-day", actor.DefaultDeadline,
		func(ctx context.Context) (int, error) {
			opened := time.Unix(g.st().OpenServerAt, 0)
			days := int(now.Sub(opened).Hours()/24) + 1
			if days < 1 {
				days = 1
			}

			return days, nil
		},
	)

	return fut.Await(ctx).Unpack()
}

// CurrentDay returns the last committed open-server day.
func (g *ServerInfoAgent) CurrentDay(ctx context.Context) (int, error) {
	mb := g.comp.Actor().Mailbox()
	fut := actor.Ask(ctx, mb, "server.current-day",
		actor.DefaultDeadline,
		func(ctx context.Context) (int, error) {
			return g.st().CurrentDay, nil
		},
	)

	return fut.Await(ctx).Unpack()
}
