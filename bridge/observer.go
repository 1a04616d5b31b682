// Package bridge forwards chain-added events from the chain read model
// into the consensus event queue. The consensus core itself is an
// external collaborator; this package only owns the non-blocking,
// bounded delivery discipline between the two.
package bridge

import (
	"sync/atomic"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ferrous-chain/core/chain"
)

// Event is what the consensus event queue receives on each chain-added
// notification.
type Event struct {
	Header *types.Header
}

// Bridge is a bounded, drop-oldest multi-producer-single-consumer queue.
// It is deliberately not an event.Feed: a Feed fans out to every
// subscriber and never drops, whereas this queue has exactly one
// consumer and must drop the oldest entry on overflow while recording a
// counter, a shape a Feed does not have.
type Bridge struct {
	queue   chan Event
	dropped uint64
}

// New creates a Bridge with the given queue capacity.
func New(capacity int) *Bridge {
	return &Bridge{queue: make(chan Event, capacity)}
}

// Enqueue is non-blocking. When the queue is full it drops the oldest
// queued event to make room for the new one, incrementing Dropped.
func (b *Bridge) Enqueue(ev Event) {
	for {
		select {
		case b.queue <- ev:
			return
		default:
		}
		select {
		case <-b.queue:
			atomic.AddUint64(&b.dropped, 1)
		default:
			// another goroutine already drained the slot we saw full;
			// retry the non-blocking send.
		}
	}
}

// Dropped returns the number of events dropped due to overflow.
func (b *Bridge) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

// Events exposes the consumer side for the consensus core to drain.
func (b *Bridge) Events() <-chan Event {
	return b.queue
}

// Watch subscribes to a chain.Watcher and enqueues a NewChainHead-style
// Event for every block it observes, until stop is closed.
func Watch(w chain.Watcher, b *Bridge, stop <-chan struct{}) {
	ch := w.Watch()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			b.Enqueue(Event{Header: ev.Block.Header()})
		case <-stop:
			return
		}
	}
}
