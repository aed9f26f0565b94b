// Package state defines the contract for durable actor component state:
// the State interface every persisted object implements, the embeddable
// Base carrying the durable id and change detector, the canonical codec
// used to serialize state, and the store interface the runtime persists
// through.
package state

import (
	"github.com/roasbeef/gamecore/internal/change"
)

// State is implemented by any object a component persists. Concrete
// states embed Base to satisfy it and add their own serializable fields.
type State interface {
	// StateID returns the durable identity of this state object. For
	// component state this is the owning actor's id.
	StateID() int64

	// SetStateID assigns the durable identity. Called once when the
	// component is created, before the first load.
	SetStateID(id int64)

	// Detector returns the change detector attached to this state.
	// The detector is lazily meaningful: it reports everything as
	// changed until seeded after the first load.
	Detector() *change.Detector
}

// Base is the embeddable implementation of State. The detector is
// unexported so it is invisible to the codec.
type Base struct {
	// Id is the durable identity, serialized with the rest of the
	// state.
	Id int64 `msgpack:"id"`

	det change.Detector
}

// StateID returns the durable identity of this state object.
func (b *Base) StateID() int64 {
	return b.Id
}

// SetStateID assigns the durable identity.
func (b *Base) SetStateID(id int64) {
	b.Id = id
}

// Detector returns the change detector attached to this state.
func (b *Base) Detector() *change.Detector {
	return &b.det
}
