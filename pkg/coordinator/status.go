package coordinator

import (
	"time"

	"github.com/sambigeara/relay/pkg/eventlog"
	"github.com/sambigeara/relay/pkg/registry"
	"github.com/sambigeara/relay/pkg/types"
)

type Status struct {
	StartedAt    time.Time
	ID           string
	Addr         string
	Participants []registry.Record
	Events       []eventlog.Event
	LogicalTime  uint64
	Registered   int
	Pending      int
	// Next is the ordering key of the message the next delivery tick will
	// send, or nil when the queue is empty.
	Next *types.Key
}

// Status reports the coordinator's current state with the newest n events
// (n <= 0 returns every retained event).
func (c *Coordinator) Status(n int) Status {
	participants := c.registry.Snapshot()
	var next *types.Key
	if m, ok := c.queue.Peek(); ok {
		k := m.Key()
		next = &k
	}
	return Status{
		ID:           c.id,
		Addr:         c.tr.LocalAddr(),
		StartedAt:    c.startedAt,
		LogicalTime:  c.clock.Now(),
		Registered:   len(participants),
		Pending:      c.queue.Len(),
		Next:         next,
		Participants: participants,
		Events:       c.events.Recent(n),
	}
}

// Gauges feeds the metric gauges.
func (c *Coordinator) Gauges() (logicalTime uint64, registered, pending int) {
	return c.clock.Now(), c.registry.Len(), c.queue.Len()
}
