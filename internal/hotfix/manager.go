// Package hotfix manages the plugin surface of the game server: the set
// of logic modules that declare component bindings, the currently active
// compiled registry, and the reload path that swaps a freshly compiled
// registry in and invalidates every cached agent. Because actors resolve
// agents through the manager rather than a registry snapshot, a reload
// takes effect at the next agent access on every mailbox.
package hotfix

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/roasbeef/gamecore/internal/baselib/actor"
	"github.com/roasbeef/gamecore/internal/registry"
)

// Module is one logic plugin: a named bundle of component bindings.
// Modules register their bindings on every (re)compile, so a module can
// change its agent factories between reloads.
type Module interface {
	// Name identifies the module in logs.
	Name() string

	// Register declares the module's bindings on the table.
	Register(t *registry.Table)
}

// AgentCacheClearer is the slice of the runtime the manager needs to
// push a reload out to live actors.
type AgentCacheClearer interface {
	// ClearAgentCaches posts an agent cache clear to every live
	// actor.
	ClearAgentCaches(ctx context.Context)
}

// Manager owns the module list and the active registry. It implements
// actor.ComponentSource by delegating every resolution to the registry
// that is active at that instant.
type Manager struct {
	// mu serializes reloads.
	mu sync.Mutex

	// modules is the fixed module list, in registration order.
	modules []Module

	// current is the active compiled registry.
	current atomic.Pointer[registry.Registry]
}

// NewManager compiles the initial registry from the given modules. A
// compile failure here is a startup configuration error and aborts.
func NewManager(modules ...Module) (*Manager, error) {
	m := &Manager{
		modules: modules,
	}

	reg, err := m.compile()
	if err != nil {
		return nil, err
	}
	m.current.Store(reg)

	return m, nil
}

// compile runs every module's registration into a fresh table and
// compiles it.
func (m *Manager) compile() (*registry.Registry, error) {
	table := registry.NewTable()
	for _, mod := range m.modules {
		mod.Register(table)
		log.Debugf("Module registered: %s", mod.Name())
	}

	reg, err := registry.Compile(table)
	if err != nil {
		return nil, fmt.Errorf("module surface compile failed: %w",
			err)
	}

	return reg, nil
}

// Registry returns the currently active registry.
func (m *Manager) Registry() *registry.Registry {
	return m.current.Load()
}

// Reload recompiles the module surface and swaps it in. When a clearer
// is supplied, every live actor's agent cache is invalidated so the next
// agent access re-resolves against the new registry; in-flight work
// items keep the agent they already hold. A compile failure leaves the
// previous registry active.
func (m *Manager) Reload(ctx context.Context,
	clearer AgentCacheClearer) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.compile()
	if err != nil {
		log.Errorf("Hotfix reload failed, keeping previous "+
			"registry: %v", err)

		return err
	}

	m.current.Store(reg)

	if clearer != nil {
		clearer.ClearAgentCaches(ctx)
	}

	log.Infof("Hotfix reload applied: modules=%d", len(m.modules))

	return nil
}

// Watch blocks watching the given directory for writes and triggers a
// reload on every change, until the context is cancelled. The directory
// stands in for a plugin drop point: touching any file in it signals
// that the logic surface changed.
func (m *Manager) Watch(ctx context.Context, dir string,
	clearer AgentCacheClearer) error {

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("hotfix watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("hotfix watch %s: %w", dir, err)
	}

	log.Infof("Hotfix watcher started: dir=%s", dir)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			log.Infof("Hotfix trigger: %s", event.Name)

			// A failed reload keeps the old surface; the watcher
			// stays up for the corrected drop.
			_ = m.Reload(ctx, clearer)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			log.Errorf("Hotfix watcher error: %v", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ComponentOf resolves the component type an agent type is bound to in
// the active registry.
//
// NOTE: This implements the actor.ComponentSource interface.
func (m *Manager) ComponentOf(
	agent actor.AgentType) (actor.ComponentType, bool) {

	return m.current.Load().ComponentOf(agent)
}

// ActorTypeOf resolves the actor type a component type is registered
// for in the active registry.
//
// NOTE: This implements the actor.ComponentSource interface.
func (m *Manager) ActorTypeOf(
	comp actor.ComponentType) (actor.Type, bool) {

	return m.current.Load().ActorTypeOf(comp)
}

// ComponentsOf lists the component types registered for an actor type
// in the active registry.
//
// NOTE: This implements the actor.ComponentSource interface.
func (m *Manager) ComponentsOf(
	t actor.Type) []actor.ComponentType {

	return m.current.Load().ComponentsOf(t)
}

// NewComponent instantiates a component via the active registry.
//
// NOTE: This implements the actor.ComponentSource interface.
func (m *Manager) NewComponent(a *actor.Actor,
	comp actor.ComponentType) (*actor.Component, error) {

	return m.current.Load().NewComponent(a, comp)
}

// NewAgent instantiates a fresh agent via the active registry.
//
// NOTE: This implements the actor.ComponentSource interface.
func (m *Manager) NewAgent(
	comp actor.ComponentType) (actor.Agent, error) {

	return m.current.Load().NewAgent(comp)
}

// Ensure Manager implements the actor package's component source.
var _ actor.ComponentSource = (*Manager)(nil)
