package change

import (
	"io"
)

// SerializeFunc writes a state object's canonical serialization to w. The
// detector only ever observes state through this function, so it works for
// any state shape without a dirty-tracking API in user code.
type SerializeFunc func(w io.Writer) error

// Detector tracks whether a state object's serialized form has drifted
// from the version last written to the store. It keeps two digests: the
// most recently computed one and the one as of the last successful
// persist.
//
// A Detector is owned by a single state object and is only touched from
// the owning actor's mailbox, so it needs no internal locking.
type Detector struct {
	current   Digest
	persisted Digest
}

// digestOf runs serialize into a fresh sink and returns the resulting
// digest. A serialization failure is logged and yields the zero digest,
// which the IsChanged rule treats as "must save", so a transient encoder
// error can never suppress a write-back.
func digestOf(serialize SerializeFunc) Digest {
	sink := NewSink()
	if err := serialize(sink); err != nil {
		log.Errorf("State serialization failed during digest: %v",
			err)

		return Digest{}
	}

	return sink.Digest()
}

// Seed records the digest of the freshly loaded (or freshly created)
// state as both the current and persisted baselines. Called once after a
// successful load from the store.
func (d *Detector) Seed(serialize SerializeFunc) {
	dig := digestOf(serialize)
	d.current = dig
	d.persisted = dig
}

// IsChanged reports whether the state's serialization differs from the
// persisted baseline. If the cached current digest already differs, that
// answer is returned without re-serializing. Otherwise the state is
// re-serialized, the current digest refreshed, and the comparison redone;
// a zero current digest also reports changed, forcing a save whenever the
// digest was lost or collided with the sentinel.
func (d *Detector) IsChanged(serialize SerializeFunc) bool {
	if d.current != d.persisted {
		return true
	}

	d.current = digestOf(serialize)

	return d.current != d.persisted || d.current.IsZero()
}

// MarkPersisted promotes the current digest to the persisted baseline.
// Called only after the store acknowledged the write; on a failed write
// the baseline stays behind so the next IsChanged still reports true.
func (d *Detector) MarkPersisted() {
	d.persisted = d.current
}

// Current returns the most recently computed digest.
func (d *Detector) Current() Digest {
	return d.current
}

// Persisted returns the digest as of the last successful persist.
func (d *Detector) Persisted() Digest {
	return d.persisted
}
