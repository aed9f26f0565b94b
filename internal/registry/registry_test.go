package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/gamecore/internal/baselib/actor"
	"github.com/roasbeef/gamecore/internal/state"
)

type regTestState struct {
	state.Base `msgpack:",inline"`

	Value int `msgpack:"value"`
}

type regTestAgent struct {
	comp *actor.Component
}

func (a *regTestAgent) Bind(comp *actor.Component) { a.comp = comp }

// binding returns a valid role binding that tests tweak per case.
func binding() Binding {
	return Binding{
		ActorType: actor.TypeRole,
		Component: actor.ComponentType("reg.comp"),
		Agent:     actor.AgentType("reg.agent"),
		Feature:   FeatureID("base"),
		NewState: func() state.State {
			return &regTestState{}
		},
		NewAgent: func() actor.Agent {
			return &regTestAgent{}
		},
	}
}

// TestCompileBuildsMaps verifies the compiled lookup maps.
func TestCompileBuildsMaps(t *testing.T) {
	t.Parallel()

	table := NewTable()
	table.Register(binding())

	serverBinding := binding()
	serverBinding.ActorType = actor.TypeServer
	serverBinding.Component = "reg.server"
	serverBinding.Agent = "reg.server.agent"
	serverBinding.Feature = ""
	table.Register(serverBinding)

	reg, err := Compile(table)
	require.NoError(t, err)

	comp, ok := reg.ComponentOf("reg.agent")
	require.True(t, ok)
	require.EqualValues(t, "reg.comp", comp)

	actorType, ok := reg.ActorTypeOf("reg.comp")
	require.True(t, ok)
	require.Equal(t, actor.TypeRole, actorType)

	require.ElementsMatch(t,
		[]actor.ComponentType{"reg.comp"},
		reg.ComponentsOf(actor.TypeRole),
	)
	require.ElementsMatch(t,
		[]actor.ComponentType{"reg.server"},
		reg.ComponentsOf(actor.TypeServer),
	)

	require.ElementsMatch(t,
		[]actor.ComponentType{"reg.comp"},
		reg.FeatureComponents("base"),
	)

	feature, ok := reg.FeatureOf("reg.comp")
	require.True(t, ok)
	require.EqualValues(t, "base", feature)

	// The untagged global joins no feature map.
	_, ok = reg.FeatureOf("reg.server")
	require.False(t, ok)
}

// TestCompileRejectsInvalidBindings verifies startup fails fast on
// malformed declarations.
func TestCompileRejectsInvalidBindings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Binding)
	}{
		{
			name: "missing actor type",
			mutate: func(b *Binding) {
				b.ActorType = actor.TypeNone
			},
		},
		{
			name: "separator actor type",
			mutate: func(b *Binding) {
				b.ActorType = actor.TypeSeparator
			},
		},
		{
			name: "missing component",
			mutate: func(b *Binding) {
				b.Component = ""
			},
		},
		{
			name: "missing agent type",
			mutate: func(b *Binding) {
				b.Agent = ""
			},
		},
		{
			name: "missing state factory",
			mutate: func(b *Binding) {
				b.NewState = nil
			},
		},
		{
			name: "missing agent factory",
			mutate: func(b *Binding) {
				b.NewAgent = nil
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b := binding()
			tc.mutate(&b)

			table := NewTable()
			table.Register(b)

			_, err := Compile(table)
			require.Error(t, err)
		})
	}
}

// TestCompileRejectsDuplicates verifies duplicate component and agent
// declarations fail compilation.
func TestCompileRejectsDuplicates(t *testing.T) {
	t.Parallel()

	table := NewTable()
	table.Register(binding())
	table.Register(binding())

	_, err := Compile(table)
	require.Error(t, err)

	// Same agent bound to two components.
	table = NewTable()
	table.Register(binding())
	second := binding()
	second.Component = "reg.other"
	table.Register(second)

	_, err = Compile(table)
	require.Error(t, err)
}

// TestNewComponentAssertsActorType verifies components only instantiate
// on actors of their registered type.
func TestNewComponentAssertsActorType(t *testing.T) {
	t.Parallel()

	table := NewTable()
	table.Register(binding())
	reg, err := Compile(table)
	require.NoError(t, err)

	env := &actor.Env{
		Source: reg,
		Store:  nopStore{},
		Codec:  state.NewMsgpackCodec(),
	}

	roleActor := actor.New(actor.RoleID(1), env, nil)
	defer roleActor.Stop()
	serverActor := actor.New(actor.GlobalID(actor.TypeServer), env, nil)
	defer serverActor.Stop()

	comp, err := reg.NewComponent(roleActor, "reg.comp")
	require.NoError(t, err)
	require.EqualValues(t, int64(actor.RoleID(1)),
		comp.State().StateID())

	_, err = reg.NewComponent(serverActor, "reg.comp")
	require.ErrorIs(t, err, actor.ErrComponentNotRegistered)

	_, err = reg.NewComponent(roleActor, "reg.unknown")
	require.ErrorIs(t, err, actor.ErrComponentNotRegistered)
}

// nopStore satisfies state.Store for registry tests; nothing here
// touches persistence.
type nopStore struct{}

func (nopStore) Upsert(_ context.Context, _ string, _ int64,
	_ []byte) error {

	return nil
}

func (nopStore) LoadByID(_ context.Context, _ string,
	_ int64) ([]byte, bool, error) {

	return nil, false, nil
}
