package state

import (
	"context"
)

// Store is the object-addressed persistence sink the runtime writes
// state through. Keys are (kind, id) where kind is the component type
// and id the durable state id. Both operations may fail; callers decide
// retry policy.
type Store interface {
	// Upsert writes the serialized state bytes for the given key,
	// inserting or replacing as needed.
	Upsert(ctx context.Context, kind string, id int64,
		data []byte) error

	// LoadByID reads the serialized state bytes for the given key.
	// The boolean reports whether a row existed.
	LoadByID(ctx context.Context, kind string, id int64) ([]byte,
		bool, error)
}
