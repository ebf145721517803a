// Package broadcast is the daemon's single multi-consumer event stream
// (spec §3 "Broadcast channel"): every connected IPC client subscribes for
// the duration of its session and receives every lifecycle event; a slow
// consumer has events dropped for it rather than blocking the producer.
//
// Grounded on arkeep-io-arkeep/server/internal/websocket/hub.go's
// single-writer event loop. Generalized from per-topic subscription (one
// Hub, many topics, clients pick topics) to whole-stream subscription (one
// Bus, every subscriber gets every event) since backutil has no topic
// concept — and, unlike the hub, a slow subscriber is never disconnected:
// an IPC connection's event feed sharing a goroutine with its synchronous
// request/response loop must keep running even if it is dropping events,
// per spec §5 "a bounded broadcast channel that drops for slow consumers."
package broadcast

import (
	"sync"

	"github.com/backutil/backutil/internal/types"
)

// subscriberBuffer bounds how many undelivered events a slow subscriber can
// accumulate before further events are dropped for it (spec §5).
const subscriberBuffer = 32

// Bus fans out Events to every current Subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
}

// Subscriber is a single connection's view of the event stream. Events is
// read-only to callers outside this package.
type Subscriber struct {
	Events chan types.Event
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[*Subscriber]struct{})}
}

// Subscribe registers a new Subscriber. Callers must Unsubscribe when done
// (typically via defer in the IPC connection's handler).
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{Events: make(chan types.Event, subscriberBuffer)}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub from the Bus and closes its channel so a reader
// ranging over it terminates.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub.Events)
	}
	b.mu.Unlock()
}

// Publish sends ev to every current subscriber. Safe to call from any
// goroutine (jobmanager workers, auto-prune tasks). Sends happen under the
// read lock, so Unsubscribe cannot close a channel mid-send; every send is
// non-blocking, so holding the lock never stalls Publish or other
// subscribers.
func (b *Bus) Publish(ev types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subscribers {
		select {
		case s.Events <- ev:
		default:
			// Subscriber's buffer is full; drop this event for it rather
			// than block the producer or disconnect it.
		}
	}
}

// CloseAll unsubscribes and closes every subscriber's channel at once.
func (b *Bus) CloseAll() {
	b.mu.Lock()
	for s := range b.subscribers {
		close(s.Events)
	}
	b.subscribers = make(map[*Subscriber]struct{})
	b.mu.Unlock()
}

// Count returns the number of currently connected subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
