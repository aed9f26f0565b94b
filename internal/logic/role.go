// Package logic ships the built-in game logic modules: the per-player
// role info component and the global server info component that drives
// the day rollover. Beyond their game duties these are the reference
// implementations of the agent contract; new feature modules follow
// their shape.
package logic

import (
	"context"
	"fmt"
	"time"

	"github.com/roasbeef/gamecore/internal/baselib/actor"
	"github.com/roasbeef/gamecore/internal/state"
)

const (
	// RoleInfoComponent is the role info component type.
	RoleInfoComponent actor.ComponentType = "role.info"

	// RoleInfoAgentType is the agent type fronting role info state.
	RoleInfoAgentType actor.AgentType = "role.info.agent"

	// FeatureBase is the feature id for always-on role components.
	FeatureBase = "base"
)

// RoleInfoState is the durable per-player profile.
type RoleInfoState struct {
	state.Base `msgpack:",inline"`

	// Name is the player-chosen display name.
	Name string `msgpack:"name"`

	// Level is the player's current level.
	Level int `msgpack:"level"`

	// LoginDays counts distinct server days this player logged in.
	LoginDays int `msgpack:"login_days"`

	// LastLoginAt is the unix time of the most recent login.
	LastLoginAt int64 `msgpack:"last_login_at"`

	// OnlineAt is the unix time of the current session start, or 0
	// when offline. Not meaningful across restarts but persisted with
	// the rest of the profile for post-mortem inspection.
	OnlineAt int64 `msgpack:"online_at"`
}

// RoleInfoAgent is the behavior facade over RoleInfoState.
type RoleInfoAgent struct {
	comp *actor.Component
}

// NewRoleInfoAgent builds an unbound agent; the component binds it.
func NewRoleInfoAgent() actor.Agent {
	return &RoleInfoAgent{}
}

// Bind attaches the agent to its owning component.
//
// NOTE: This implements the actor.Agent interface.
func (g *RoleInfoAgent) Bind(comp *actor.Component) {
	g.comp = comp
}

// st returns the concrete state. Only called from work already running
// on the owning mailbox.
func (g *RoleInfoAgent) st() *RoleInfoState {
	return g.comp.State().(*RoleInfoState)
}

// OnActivate stamps the session start when the player's role comes hot.
//
// NOTE: This implements the actor.Activator interface.
func (g *RoleInfoAgent) OnActivate(ctx context.Context) error {
	g.st().OnlineAt = time.Now().Unix()
	return nil
}

// OnDeactivate clears the session marker before the final save.
//
// NOTE: This implements the actor.Deactivator interface.
func (g *RoleInfoAgent) OnDeactivate(ctx context.Context) error {
	g.st().OnlineAt = 0
	return nil
}

// OnCrossDay counts the rollover as a fresh login day for players that
// are online when the day flips.
//
// NOTE: This implements the actor.CrossDayer interface.
func (g *RoleInfoAgent) OnCrossDay(ctx context.Context,
	openServerDay int) error {

	st := g.st()
	if st.OnlineAt > 0 {
		st.LoginDays++
	}

	return nil
}

// Login records a login for this player, naming the role on first
// login, and returns the resulting level. Dispatched through the owning
// mailbox.
func (g *RoleInfoAgent) Login(ctx context.Context,
	name string) (int, error) {

	mb := g.comp.Actor().Mailbox()
	fut := actor.Ask(ctx, mb, "role.login", actor.DefaultDeadline,
		func(ctx context.Context) (int, error) {
			st := g.st()

			if st.Name == "" {
				st.Name = name
			}
			if st.Level == 0 {
				st.Level = 1
			}
			if st.LastLoginAt == 0 {
				st.LoginDays = 1
			}
			st.LastLoginAt = time.Now().Unix()
			st.OnlineAt = st.LastLoginAt

			return st.Level, nil
		},
	)

	return fut.Await(ctx).Unpack()
}

// AddLevel raises the player's level by delta and returns the new
// level.
func (g *RoleInfoAgent) AddLevel(ctx context.Context,
	delta int) (int, error) {

	if delta <= 0 {
		return 0, fmt.Errorf("level delta must be positive, got %d",
			delta)
	}

	mb := g.comp.Actor().Mailbox()
	fut := actor.Ask(ctx, mb, "role.add-level", actor.DefaultDeadline,
		func(ctx context.Context) (int, error) {
			st := g.st()
			st.Level += delta

			return st.Level, nil
		},
	)

	return fut.Await(ctx).Unpack()
}

// Profile is the read-side snapshot of a role.
type Profile struct {
	Name      string
	Level     int
	LoginDays int
}

// GetProfile returns a consistent snapshot of the player's profile.
func (g *RoleInfoAgent) GetProfile(ctx context.Context) (Profile, error) {
	mb := g.comp.Actor().Mailbox()
	fut := actor.Ask(ctx, mb, "role.profile", actor.DefaultDeadline,
		func(ctx context.Context) (Profile, error) {
			st := g.st()

			return Profile{
				Name:      st.Name,
				Level:     st.Level,
				LoginDays: st.LoginDays,
			}, nil
		},
	)

	return fut.Await(ctx).Unpack()
}
