package logic

import (
	"github.com/roasbeef/gamecore/internal/baselib/actor"
	"github.com/roasbeef/gamecore/internal/registry"
	"github.com/roasbeef/gamecore/internal/state"
)

// Module is the built-in logic plugin bundling the role info and server
// info components.
type Module struct{}

// Name identifies the module in logs.
//
// NOTE: This implements the hotfix.Module interface.
func (Module) Name() string {
	return "logic.builtin"
}

// Register declares the module's component bindings.
//
// NOTE: This implements the hotfix.Module interface.
func (Module) Register(t *registry.Table) {
	t.Register(registry.Binding{
		ActorType: actor.TypeRole,
		Component: RoleInfoComponent,
		Agent:     RoleInfoAgentType,
		Feature:   FeatureBase,
		NewState: func() state.State {
			return &RoleInfoState{}
		},
		NewAgent: NewRoleInfoAgent,
	})

	t.Register(registry.Binding{
		ActorType: actor.TypeServer,
		Component: ServerInfoComponent,
		Agent:     ServerInfoAgentType,
		NewState: func() state.State {
			return &ServerInfoState{}
		},
		NewAgent: NewServerInfoAgent,
	})
}
