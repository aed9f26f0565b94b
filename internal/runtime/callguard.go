package runtime

import (
	"fmt"

	"github.com/roasbeef/gamecore/internal/baselib/actor"
)

// StrictCallGuard is the development-mode call permission check. Role
// actors must never ask other role actors directly: such calls couple
// two player timelines and are the classic source of cross-player
// deadlocks once chains diverge. In debug builds the guard rejects the
// pattern loudly instead of letting it slip into production.
type StrictCallGuard struct{}

// Allow implements actor.CallGuard.
func (StrictCallGuard) Allow(caller actor.Call, target actor.ID) error {
	// Calls originating outside any actor are always admitted.
	if caller.Chain == 0 {
		return nil
	}

	callerType := caller.Actor.Type()
	if callerType == actor.TypeRole && target.Type() == actor.TypeRole &&
		caller.Actor != target {

		return fmt.Errorf("forbidden role-to-role call: %v -> %v",
			caller.Actor, target)
	}

	return nil
}

// Ensure StrictCallGuard implements the guard interface.
var _ actor.CallGuard = StrictCallGuard{}
