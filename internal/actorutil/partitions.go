package actorutil

import (
	"sync"

	"github.com/roasbeef/gamecore/internal/baselib/actor"
)

// Partitions is a fixed set of mailboxes that serializes work by actor
// id: every id hashes to the same lane for the life of the process, so
// two decisions about the same id can never race even when they arrive
// on different goroutines. The runtime uses this as the lifecycle lane
// set for role actor create/evict coordination, giving each actor a
// stable lane distinct from its own mailbox.
type Partitions struct {
	lanes []*actor.Mailbox
	wg    sync.WaitGroup
}

// NewPartitions creates and starts size lane mailboxes. Lane owner ids
// use the reserved TypeNone namespace so they can never collide with a
// real actor id.
func NewPartitions(size int) *Partitions {
	if size <= 0 {
		size = 1
	}

	p := &Partitions{
		lanes: make([]*actor.Mailbox, size),
	}

	for i := 0; i < size; i++ {
		mb := actor.NewMailbox(actor.MailboxConfig{
			Owner: actor.MakeID(actor.TypeNone, uint64(i)),
			Wg:    &p.wg,
		})
		mb.Start()
		p.lanes[i] = mb
	}

	return p
}

// ByID returns the lane mailbox for the given actor id.
func (p *Partitions) ByID(id actor.ID) *actor.Mailbox {
	return p.lanes[uint64(id)%uint64(len(p.lanes))]
}

// Size returns the number of lanes.
func (p *Partitions) Size() int {
	return len(p.lanes)
}

// Stop terminates all lanes and waits for their workers to exit.
func (p *Partitions) Stop() {
	for _, mb := range p.lanes {
		mb.Stop()
	}

	p.wg.Wait()
}
