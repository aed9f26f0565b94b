package actor

import (
	"fmt"
)

// Type enumerates the kinds of actors the runtime hosts. The numeric
// value is meaningful: types above TypeSeparator are process-wide global
// singletons (one instance, id derived from the type alone); types below
// it are per-entity actors, of which TypeRole is the per-player kind
// that is lazily created and auto-recycled when idle.
type Type uint16

const (
	// TypeNone is the zero value and is never a valid actor type.
	TypeNone Type = 0

	// TypeRole is the per-player actor type.
	TypeRole Type = 1

	// TypeGuild is a per-entity actor type for guild entities. Guild
	// actors are not auto-recycled.
	TypeGuild Type = 2

	// TypeSeparator divides per-entity types from global singleton
	// types. It is not itself a valid actor type.
	TypeSeparator Type = 128

	// TypeServer is the global server actor, owner of the server-wide
	// date counter and the nominated cross-day driver.
	TypeServer Type = 129

	// TypeRank is the global ranking actor.
	TypeRank Type = 130

	// TypeChat is the global chat actor.
	TypeChat Type = 131
)

// String returns a human readable name for the type.
func (t Type) String() string {
	switch t {
	case TypeRole:
		return "role"
	case TypeGuild:
		return "guild"
	case TypeServer:
		return "server"
	case TypeRank:
		return "rank"
	case TypeChat:
		return "chat"
	default:
		return fmt.Sprintf("type-%d", uint16(t))
	}
}

// IsGlobal reports whether the type is a process-wide singleton.
func (t Type) IsGlobal() bool {
	return t > TypeSeparator
}

const (
	// idTypeShift is the bit position of the type field within an ID.
	idTypeShift = 48

	// idInstanceMask masks the instance discriminator bits of an ID.
	idInstanceMask uint64 = (1 << idTypeShift) - 1
)

// ID is the 64-bit composite actor identity: the actor type in the high
// 16 bits and an instance discriminator in the low 48. Global singletons
// use instance 0, so their id is derived from the type alone.
type ID uint64

// MakeID builds an id from a type and an instance discriminator.
func MakeID(t Type, instance uint64) ID {
	return ID(uint64(t)<<idTypeShift | instance&idInstanceMask)
}

// GlobalID returns the fixed id of the singleton actor for a global
// type.
func GlobalID(t Type) ID {
	return MakeID(t, 0)
}

// RoleID returns the id of the role actor for the given player.
func RoleID(playerID uint64) ID {
	return MakeID(TypeRole, playerID)
}

// Type extracts the actor type encoded in the id.
func (id ID) Type() Type {
	return Type(uint64(id) >> idTypeShift)
}

// Instance extracts the instance discriminator encoded in the id.
func (id ID) Instance() uint64 {
	return uint64(id) & idInstanceMask
}

// String renders the id as type:instance for logs.
func (id ID) String() string {
	return fmt.Sprintf("%s:%d", id.Type(), id.Instance())
}
