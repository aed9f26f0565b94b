package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/gamecore/internal/baselib/actor"
	"github.com/roasbeef/gamecore/internal/registry"
	"github.com/roasbeef/gamecore/internal/state"
)

// Test component surface: one role component plus a driver (server), a
// second global (rank), and a non-role non-global (guild) for cross-day
// phase checks.
const (
	tRoleComp   actor.ComponentType = "t.role"
	tRoleAgent  actor.AgentType     = "t.role.agent"
	tServerComp actor.ComponentType = "t.server"
	tServerAg   actor.AgentType     = "t.server.agent"
	tRankComp   actor.ComponentType = "t.rank"
	tRankAgent  actor.AgentType     = "t.rank.agent"
	tGuildComp  actor.ComponentType = "t.guild"
	tGuildAgent actor.AgentType     = "t.guild.agent"
)

// recorder collects named events in arrival order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.events))
	copy(out, r.events)

	return out
}

// indexOf returns the position of the first event equal to name, or -1.
func indexOf(events []string, name string) int {
	for i, e := range events {
		if e == name {
			return i
		}
	}

	return -1
}

// tState is the shared durable state for test components.
type tState struct {
	state.Base `msgpack:",inline"`

	Counter int `msgpack:"counter"`
}

// tAgent is the shared test agent: it records cross-day events against a
// recorder, can stall its hook, and can veto deactivation.
type tAgent struct {
	comp *actor.Component

	name      string
	rec       *recorder
	hookSleep time.Duration

	mu        sync.Mutex
	quiescent bool
}

func (a *tAgent) Bind(comp *actor.Component) { a.comp = comp }

func (a *tAgent) OnCrossDay(ctx context.Context, day int) error {
	a.rec.record(a.name + "-start")
	if a.hookSleep > 0 {
		time.Sleep(a.hookSleep)
	}
	a.rec.record(a.name + "-end")

	return nil
}

func (a *tAgent) ReadyToDeactivate() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.quiescent
}

func (a *tAgent) setQuiescent(q bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.quiescent = q
}

// Touch marks the agent's state dirty through the owning mailbox.
func (a *tAgent) Touch(ctx context.Context) error {
	mb := a.comp.Actor().Mailbox()
	_, err := actor.Ask(ctx, mb, "t.touch", actor.DefaultDeadline,
		func(ctx context.Context) (int, error) {
			st := a.comp.State().(*tState)
			st.Counter++

			return st.Counter, nil
		},
	).Await(ctx).Unpack()

	return err
}

// testModuleConfig tunes the compiled test surface.
type testModuleConfig struct {
	rec       *recorder
	hookSleep time.Duration
}

// compileTestRegistry builds the four-component test registry.
func compileTestRegistry(t *testing.T,
	cfg testModuleConfig) *registry.Registry {

	t.Helper()

	if cfg.rec == nil {
		cfg.rec = &recorder{}
	}

	table := registry.NewTable()

	add := func(at actor.Type, comp actor.ComponentType,
		agentType actor.AgentType, name string) {

		table.Register(registry.Binding{
			ActorType: at,
			Component: comp,
			Agent:     agentType,
			NewState: func() state.State {
				return &tState{}
			},
			NewAgent: func() actor.Agent {
				return &tAgent{
					name:      name,
					rec:       cfg.rec,
					hookSleep: cfg.hookSleep,
					quiescent: true,
				}
			},
		})
	}

	add(actor.TypeRole, tRoleComp, tRoleAgent, "role")
	add(actor.TypeServer, tServerComp, tServerAg, "driver")
	add(actor.TypeRank, tRankComp, tRankAgent, "global")
	add(actor.TypeGuild, tGuildComp, tGuildAgent, "other")

	reg, err := registry.Compile(table)
	require.NoError(t, err)

	return reg
}

// fakeClock is an adjustable clock for idle-window tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// rtMemStore is an in-memory state.Store recording write order.
type rtMemStore struct {
	mu         sync.Mutex
	rows       map[string][]byte
	writeLog   []string
	failWrites bool
}

func newRTMemStore() *rtMemStore {
	return &rtMemStore{rows: make(map[string][]byte)}
}

func (s *rtMemStore) key(kind string, id int64) string {
	return fmt.Sprintf("%s/%d", kind, id)
}

func (s *rtMemStore) Upsert(_ context.Context, kind string, id int64,
	data []byte) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites {
		return fmt.Errorf("write refused")
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	s.rows[s.key(kind, id)] = buf
	s.writeLog = append(s.writeLog, s.key(kind, id))

	return nil
}

func (s *rtMemStore) LoadByID(_ context.Context, kind string,
	id int64) ([]byte, bool, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.rows[s.key(kind, id)]
	return data, ok, nil
}

func (s *rtMemStore) writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.writeLog))
	copy(out, s.writeLog)

	return out
}

func (s *rtMemStore) setFailWrites(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failWrites = fail
}

// testHarness bundles a runtime with its fakes.
type testHarness struct {
	rt    *Runtime
	store *rtMemStore
	clock *fakeClock
	rec   *recorder
}

// newHarness constructs a runtime over the test registry and fakes.
func newHarness(t *testing.T, cfg testModuleConfig) *testHarness {
	t.Helper()

	if cfg.rec == nil {
		cfg.rec = &recorder{}
	}

	reg := compileTestRegistry(t, cfg)
	store := newRTMemStore()
	clock := newFakeClock()

	rt, err := New(Config{
		Source: reg,
		Store:  store,
		Clock:  clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(rt.Stop)
	t.Cleanup(func() {
		// Detach actors before waiting on their workers.
		_ = rt.RemoveAll(context.Background())
	})

	return &testHarness{
		rt:    rt,
		store: store,
		clock: clock,
		rec:   cfg.rec,
	}
}

// roleAgentFor resolves the test role agent for a player.
func (h *testHarness) roleAgentFor(t *testing.T,
	playerID uint64) *tAgent {

	t.Helper()

	agent, err := h.rt.RoleAgentOf(
		context.Background(), playerID, tRoleAgent,
	)
	require.NoError(t, err)

	return agent.(*tAgent)
}

// TestGetOrCreateGlobalIdempotent verifies singleton semantics for
// global actors.
func TestGetOrCreateGlobalIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testModuleConfig{})
	ctx := context.Background()

	first, err := h.rt.GetOrCreate(ctx, actor.GlobalID(actor.TypeRank))
	require.NoError(t, err)
	second, err := h.rt.GetOrCreate(ctx, actor.GlobalID(actor.TypeRank))
	require.NoError(t, err)

	require.Same(t, first, second)
	require.False(t, first.AutoRecycle(),
		"globals must not auto-recycle")
	require.Equal(t, 1, h.rt.ActorCount())
}

// TestGetOrCreateConcurrentRoles verifies concurrent lookups of one role
// id converge on a single actor.
func TestGetOrCreateConcurrentRoles(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testModuleConfig{})
	ctx := context.Background()

	const goroutines = 16

	var wg sync.WaitGroup
	actors := make([]*actor.Actor, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()

			a, err := h.rt.GetOrCreate(ctx, actor.RoleID(7))
			if err == nil {
				actors[slot] = a
			}
		}(i)
	}
	wg.Wait()

	require.NotNil(t, actors[0])
	for _, a := range actors[1:] {
		require.Same(t, actors[0], a)
	}
	require.Equal(t, 1, h.rt.ActorCount())
}

// TestRoleHotPathSkipsPartition verifies a lookup within the hot window
// completes without dispatching to the (deliberately wedged) lifecycle
// partition.
func TestRoleHotPathSkipsPartition(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testModuleConfig{})
	ctx := context.Background()

	id := actor.RoleID(55)
	a, err := h.rt.GetOrCreate(ctx, id)
	require.NoError(t, err)

	// Wedge the id's partition lane. If the hot path dispatched to
	// it, the lookup below would stall behind this item.
	release := make(chan struct{})
	defer close(release)
	h.rt.parts.ByID(id).Tell(ctx, "wedge",
		func(ctx context.Context) error {
			<-release
			return nil
		},
	)

	done := make(chan *actor.Actor, 1)
	go func() {
		hot, err := h.rt.GetOrCreate(ctx, id)
		if err == nil {
			done <- hot
		}
	}()

	select {
	case hot := <-done:
		require.Same(t, a, hot)

	case <-time.After(2 * time.Second):
		t.Fatal("hot-window lookup blocked on the partition")
	}
}

// TestAgentOfRoleRejected verifies the global resolver refuses role
// agent types.
func TestAgentOfRoleRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testModuleConfig{})
	ctx := context.Background()

	_, err := h.rt.AgentOf(ctx, tRoleAgent)
	require.Error(t, err)

	_, err = h.rt.RoleAgentOf(ctx, 1, tRankAgent)
	require.Error(t, err)

	agent, err := h.rt.AgentOf(ctx, tRankAgent)
	require.NoError(t, err)
	require.IsType(t, &tAgent{}, agent)
}

// TestForEachOfType verifies the broadcast reaches every live actor of
// the mapped type and no other.
func TestForEachOfType(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testModuleConfig{})
	ctx := context.Background()

	h.roleAgentFor(t, 1)
	h.roleAgentFor(t, 2)
	_, err := h.rt.AgentOf(ctx, tRankAgent)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[int64]bool)
	done := make(chan struct{}, 4)

	err = h.rt.ForEachOfType(ctx, tRoleAgent,
		func(ctx context.Context, agent actor.Agent) error {
			ta := agent.(*tAgent)

			mu.Lock()
			seen[ta.comp.State().StateID()] = true
			mu.Unlock()

			done <- struct{}{}

			return nil
		},
	)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("broadcast did not reach all role actors")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	require.True(t, seen[int64(actor.RoleID(1))])
	require.True(t, seen[int64(actor.RoleID(2))])
}

// TestStrictCallGuard verifies the debug guard's role-to-role policy.
func TestStrictCallGuard(t *testing.T) {
	t.Parallel()

	guard := StrictCallGuard{}

	// External callers always pass.
	require.NoError(t, guard.Allow(actor.Call{}, actor.RoleID(2)))

	// Role asking itself is the reentrancy path, allowed.
	self := actor.Call{Chain: 9, Actor: actor.RoleID(2)}
	require.NoError(t, guard.Allow(self, actor.RoleID(2)))

	// Role to different role is forbidden.
	other := actor.Call{Chain: 9, Actor: actor.RoleID(1)}
	require.Error(t, guard.Allow(other, actor.RoleID(2)))

	// Role to global is fine.
	require.NoError(t, guard.Allow(
		other, actor.GlobalID(actor.TypeRank),
	))
}
