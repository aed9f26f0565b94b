package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roasbeef/gamecore/internal/actorutil"
	"github.com/roasbeef/gamecore/internal/baselib/actor"
)

// IdleScan walks the directory and evicts role actors that have sat idle
// past the threshold. The scan itself only nominates candidates; the
// actual decision runs on the candidate's lifecycle partition, where the
// idle condition is re-checked (activity can arrive between the scan
// decision and the partitioned eviction) and the actor's quiescence and
// final save are verified before it is removed from the directory.
func (r *Runtime) IdleScan(ctx context.Context) {
	now := r.clock()
	scanned, nominated := 0, 0

	for _, a := range r.snapshot() {
		if !a.AutoRecycle() {
			continue
		}
		scanned++

		id := a.ID()

		last, ok := r.lastActive.Load(id)
		if !ok {
			// Never seeded: treat as just touched so the next
			// scan has a baseline to compare against.
			r.touch(id)
			continue
		}

		if now.Sub(last.(time.Time)) <= IdleEvictThreshold {
			continue
		}

		nominated++
		target := a
		r.parts.ByID(id).TellWithDeadline(ctx,
			fmt.Sprintf("idle-evict:%v", id), actor.NoDeadline,
			func(ctx context.Context) error {
				r.evictIfStillIdle(ctx, target)
				return nil
			},
		)
	}

	if nominated > 0 {
		log.Debugf("Idle scan: scanned=%d nominated=%d", scanned,
			nominated)
	}
}

// evictIfStillIdle is the partitioned half of the idle scan. It runs on
// the actor's lifecycle lane, so it cannot race another eviction or a
// partitioned re-acquire of the same id.
func (r *Runtime) evictIfStillIdle(ctx context.Context, a *actor.Actor) {
	id := a.ID()

	// Double-check the idle condition: the hot-path lookup may have
	// touched the actor after the scan nominated it.
	last, ok := r.lastActive.Load(id)
	if !ok {
		r.touch(id)
		return
	}
	if r.clock().Sub(last.(time.Time)) <= IdleEvictThreshold {
		return
	}

	// An actor with in-flight business gets another full idle window.
	if !a.ReadyToDeactivate(ctx) {
		log.Debugf("Idle actor not quiescent, deferring eviction: "+
			"id=%v", id)

		r.touch(id)
		return
	}

	// Deactivation performs the final save. If any component failed to
	// persist, the actor must stay reachable so the data is not lost;
	// give it another window and let a later scan retry.
	if _, err := a.Deactivate(ctx).Await(ctx).Unpack(); err != nil {
		log.Errorf("Idle eviction deactivate failed, keeping "+
			"actor: id=%v: %v", id, err)

		r.touch(id)
		return
	}

	a.Stop()
	r.actors.Delete(id)
	r.lastActive.Delete(id)

	log.Infof("Idle actor evicted: id=%v", id)
}

// SaveAllNow asks every live actor to save and awaits all saves in
// parallel. Used on the shutdown path.
func (r *Runtime) SaveAllNow(ctx context.Context) error {
	actors := r.snapshot()

	futures := make([]actor.Future[any], 0, len(actors))
	for _, a := range actors {
		futures = append(futures, a.SaveAll(ctx))
	}

	results := actorutil.AwaitAll(ctx, futures)

	log.Infof("Save-all completed: actors=%d", len(actors))

	return actorutil.FirstError(results)
}

// TimerSave is the steady-state batched save: up to OnceSaveCount actors
// are dispatched and awaited per batch, with a pause between batches to
// smooth persistence I/O. It aborts as soon as the shutdown flag rises —
// the shutdown path's SaveAllNow covers everything.
func (r *Runtime) TimerSave(ctx context.Context) error {
	actors := r.snapshot()

	for start := 0; start < len(actors); start += OnceSaveCount {
		if r.IsShuttingDown() {
			log.Debugf("Timer save aborted by shutdown flag")
			return nil
		}

		end := start + OnceSaveCount
		if end > len(actors) {
			end = len(actors)
		}

		batch := actors[start:end]
		futures := make([]actor.Future[any], 0, len(batch))
		for _, a := range batch {
			futures = append(futures, a.SaveAll(ctx))
		}

		results := actorutil.AwaitAll(ctx, futures)
		if err := actorutil.FirstError(results); err != nil {
			log.Errorf("Timer save batch reported error: %v",
				err)
		}

		// Breathe between batches, but never past shutdown or
		// caller cancellation.
		if end < len(actors) {
			select {
			case <-time.After(timerSavePause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return nil
}

// CrossDay runs the phased day rollover.
//
// Phase 1 synchronously crosses the nominated driver actor (the global
// whose rollover must happen before anyone else reads the new day — the
// server-wide date counter). The driver is auto-created if it was never
// touched. Phase 2 crosses all other global actors in parallel with a
// bounded wait; phase 3 the remaining non-role, non-global actors with a
// larger bound. Exceeding a budget logs a warning and proceeds —
// cross-day is never allowed to stall the server indefinitely. Role
// actors are crossed separately via ForEachRoleCrossDay.
func (r *Runtime) CrossDay(ctx context.Context, openServerDay int,
	driverType actor.Type) error {

	if !driverType.IsGlobal() {
		return fmt.Errorf("cross-day driver %v is not a global "+
			"actor type", driverType)
	}

	// Phase 1: the driver, synchronously. The driver is auto-created
	// and its component set brought hot, so a cold start still commits
	// the new day before anyone reads it.
	driver, err := r.GetOrCreate(ctx, actor.GlobalID(driverType))
	if err != nil {
		return fmt.Errorf("cross-day driver unavailable: %w", err)
	}

	if err := driver.ActivateAll(ctx); err != nil {
		return fmt.Errorf("cross-day driver activation: %w", err)
	}

	_, err = driver.CrossDay(ctx, openServerDay).Await(ctx).Unpack()
	if err != nil {
		return fmt.Errorf("cross-day driver failed: %w", err)
	}

	log.Infof("Cross-day driver done: day=%d driver=%v", openServerDay,
		driverType)

	// Phase 2: every other global, in parallel.
	var globals []actor.Future[any]
	for _, a := range r.snapshot() {
		t := a.Type()
		if t.IsGlobal() && t != driverType {
			globals = append(globals,
				a.CrossDay(ctx, openServerDay))
		}
	}

	err = actorutil.AwaitAllTimeout(ctx, globals, CrossDayGlobalWait)
	if errors.Is(err, actorutil.ErrAwaitTimeout) {
		log.Warnf("Cross-day global phase exceeded %v, proceeding",
			CrossDayGlobalWait)
	} else if err != nil {
		return err
	}

	// Phase 3: non-role, non-global actors, dispatched only after the
	// global phase has completed.
	var others []actor.Future[any]
	for _, a := range r.snapshot() {
		t := a.Type()
		if t.IsGlobal() || t == actor.TypeRole {
			continue
		}

		others = append(others, a.CrossDay(ctx, openServerDay))
	}

	err = actorutil.AwaitAllTimeout(ctx, others, CrossDayNotRoleWait)
	if errors.Is(err, actorutil.ErrAwaitTimeout) {
		log.Warnf("Cross-day non-role phase exceeded %v, proceeding",
			CrossDayNotRoleWait)
	} else if err != nil {
		return err
	}

	log.Infof("Cross-day completed: day=%d", openServerDay)

	return nil
}

// ForEachRoleCrossDay dispatches the day rollover to every live role
// actor, fire-and-forget: players logging in later pick the new day up
// on activation, so nothing waits on this.
func (r *Runtime) ForEachRoleCrossDay(ctx context.Context,
	openServerDay int) {

	count := 0
	for _, a := range r.snapshot() {
		if a.Type() != actor.TypeRole {
			continue
		}

		a.CrossDay(ctx, openServerDay)
		count++
	}

	log.Infof("Cross-day dispatched to role actors: day=%d count=%d",
		openServerDay, count)
}

// ClearAgentCaches posts an agent cache clear to every live actor. Used
// by hotfix reload so the next agent access re-resolves against the new
// registry.
func (r *Runtime) ClearAgentCaches(ctx context.Context) {
	for _, a := range r.snapshot() {
		a.ClearAgentCache(ctx)
	}
}

// RemoveAll deactivates every actor (final saves included), awaits all,
// and clears the directory. Called on shutdown after SaveAllNow.
func (r *Runtime) RemoveAll(ctx context.Context) error {
	actors := r.snapshot()

	futures := make([]actor.Future[any], 0, len(actors))
	for _, a := range actors {
		futures = append(futures, a.Deactivate(ctx))
	}

	results := actorutil.AwaitAll(ctx, futures)

	for _, a := range actors {
		a.Stop()
		r.actors.Delete(a.ID())
		r.lastActive.Delete(a.ID())
	}

	log.Infof("All actors removed: count=%d", len(actors))

	return actorutil.FirstError(results)
}

// Shutdown runs the full shutdown drain: raise the flag, save everything,
// deactivate and remove every actor, stop the partitions.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.BeginShutdown()

	saveErr := r.SaveAllNow(ctx)
	removeErr := r.RemoveAll(ctx)
	r.Stop()

	if saveErr != nil {
		return saveErr
	}

	return removeErr
}
