package sequence

import (
	"sync"
	"time"
)

// EventType identifies what happened in a sequence.
type EventType string

const (
	// EventSequenceStarted is emitted after every step has been reset to WAITING.
	EventSequenceStarted EventType = "sequence.started"

	// EventStepTransition is emitted when a step enters LOADING, SUCCESS or ERROR.
	EventStepTransition EventType = "step.transition"

	// EventStepProgress is emitted when a LOADING step changes its helper text.
	EventStepProgress EventType = "step.progress"

	// EventSequenceFinished is emitted once per run. Err holds the run's result.
	EventSequenceFinished EventType = "sequence.finished"
)

// Event describes one change to a sequence.
//
// Step and Index are only set for step events. Snapshot is the full StepMap
// as of the change and belongs to the receiver.
type Event struct {
	Type     EventType
	Index    int
	Step     Step
	Snapshot StepMap
	Err      error
	Time     time.Time
}

// Handler receives sequence events. Handlers run synchronously on the
// goroutine that produced the change, so they should return quickly.
type Handler func(Event)

// SubscriptionID identifies a registered handler.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// bus is a small synchronous pub-sub list.
type bus struct {
	mu      sync.RWMutex
	subs    []subscription
	nextID  SubscriptionID
	onPanic func(recovered any)
}

func (b *bus) subscribe(h Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs = append(b.subs, subscription{id: b.nextID, handler: h})
	return b.nextID
}

func (b *bus) unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (b *bus) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// publish delivers e to every handler in registration order. Each handler
// gets its own copy of the snapshot.
func (b *bus) publish(e Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		ev := e
		ev.Snapshot = e.Snapshot.clone()
		b.safeCall(sub.handler, ev)
	}
}

func (b *bus) safeCall(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil && b.onPanic != nil {
			b.onPanic(r)
		}
	}()
	h(e)
}
