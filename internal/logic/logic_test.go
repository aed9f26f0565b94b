package logic_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/gamecore/internal/baselib/actor"
	"github.com/roasbeef/gamecore/internal/hotfix"
	"github.com/roasbeef/gamecore/internal/logic"
	"github.com/roasbeef/gamecore/internal/runtime"
)

// memStore is a minimal in-memory store for the logic tests.
type memStore struct {
	mu   sync.Mutex
	rows map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string][]byte)}
}

func (s *memStore) key(kind string, id int64) string {
	return fmt.Sprintf("%s/%d", kind, id)
}

func (s *memStore) Upsert(_ context.Context, kind string, id int64,
	data []byte) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	s.rows[s.key(kind, id)] = buf

	return nil
}

func (s *memStore) LoadByID(_ context.Context, kind string,
	id int64) ([]byte, bool, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.rows[s.key(kind, id)]
	return data, ok, nil
}

// newLogicRuntime builds a runtime hosting the builtin logic module.
func newLogicRuntime(t *testing.T) (*runtime.Runtime, *memStore) {
	t.Helper()

	mgr, err := hotfix.NewManager(logic.Module{})
	require.NoError(t, err)

	store := newMemStore()
	rt, err := runtime.New(runtime.Config{
		Source: mgr,
		Store:  store,
	})
	require.NoError(t, err)
	t.Cleanup(rt.Stop)
	t.Cleanup(func() {
		_ = rt.RemoveAll(context.Background())
	})

	return rt, store
}

// TestRoleLoginLifecycle verifies first login names the role and later
// logins keep the profile.
func TestRoleLoginLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt, _ := newLogicRuntime(t)

	agent, err := rt.RoleAgentOf(ctx, 1001, logic.RoleInfoAgentType)
	require.NoError(t, err)
	role := agent.(*logic.RoleInfoAgent)

	level, err := role.Login(ctx, "aria")
	require.NoError(t, err)
	require.Equal(t, 1, level)

	profile, err := role.GetProfile(ctx)
	require.NoError(t, err)
	require.Equal(t, "aria", profile.Name)
	require.Equal(t, 1, profile.Level)
	require.Equal(t, 1, profile.LoginDays)

	// A second login keeps the original name.
	_, err = role.Login(ctx, "impostor")
	require.NoError(t, err)

	profile, err = role.GetProfile(ctx)
	require.NoError(t, err)
	require.Equal(t, "aria", profile.Name)
}

// TestRoleAddLevel verifies level mutation and input validation.
func TestRoleAddLevel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt, _ := newLogicRuntime(t)

	agent, err := rt.RoleAgentOf(ctx, 1002, logic.RoleInfoAgentType)
	require.NoError(t, err)
	role := agent.(*logic.RoleInfoAgent)

	_, err = role.Login(ctx, "bo")
	require.NoError(t, err)

	level, err := role.AddLevel(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, 5, level)

	_, err = role.AddLevel(ctx, 0)
	require.Error(t, err)
	_, err = role.AddLevel(ctx, -2)
	require.Error(t, err)
}

// TestRolePersistenceAcrossEviction verifies a role profile survives a
// save/remove/recreate cycle through the store.
func TestRolePersistenceAcrossEviction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt, store := newLogicRuntime(t)

	agent, err := rt.RoleAgentOf(ctx, 1003, logic.RoleInfoAgentType)
	require.NoError(t, err)
	role := agent.(*logic.RoleInfoAgent)

	_, err = role.Login(ctx, "cyn")
	require.NoError(t, err)
	_, err = role.AddLevel(ctx, 9)
	require.NoError(t, err)

	require.NoError(t, rt.RemoveAll(ctx))

	_, found, err := store.LoadByID(
		ctx, string(logic.RoleInfoComponent),
		int64(actor.RoleID(1003)),
	)
	require.NoError(t, err)
	require.True(t, found, "profile was not persisted on removal")

	// A fresh incarnation loads the saved profile.
	agent, err = rt.RoleAgentOf(ctx, 1003, logic.RoleInfoAgentType)
	require.NoError(t, err)
	role = agent.(*logic.RoleInfoAgent)

	profile, err := role.GetProfile(ctx)
	require.NoError(t, err)
	require.Equal(t, "cyn", profile.Name)
	require.Equal(t, 10, profile.Level)
}

// TestServerInfoDriver verifies the date counter activates, computes
// days, and commits rollovers as the cross-day driver.
func TestServerInfoDriver(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt, _ := newLogicRuntime(t)

	agent, err := rt.AgentOf(ctx, logic.ServerInfoAgentType)
	require.NoError(t, err)
	server := agent.(*logic.ServerInfoAgent)

	day, err := server.CurrentDay(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, day, "fresh server starts at day 1")

	// Three days after open.
	openDay, err := server.OpenServerDay(
		ctx, time.Now().Add(49*time.Hour),
	)
	require.NoError(t, err)
	require.Equal(t, 3, openDay)

	// The rollover commits the day through the driver phase.
	require.NoError(t, rt.CrossDay(ctx, openDay, actor.TypeServer))

	day, err = server.CurrentDay(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, day)
}

// TestRoleCrossDayCountsOnlineLogins verifies an online player gains a
// login day at rollover.
func TestRoleCrossDayCountsOnlineLogins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt, _ := newLogicRuntime(t)

	agent, err := rt.RoleAgentOf(ctx, 1004, logic.RoleInfoAgentType)
	require.NoError(t, err)
	role := agent.(*logic.RoleInfoAgent)

	_, err = role.Login(ctx, "dax")
	require.NoError(t, err)

	rt.ForEachRoleCrossDay(ctx, 2)

	require.Eventually(t, func() bool {
		profile, err := role.GetProfile(ctx)
		if err != nil {
			return false
		}

		return profile.LoginDays == 2
	}, 5*time.Second, 10*time.Millisecond)
}
