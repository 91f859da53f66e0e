// Package broadcaster manages subscribers and distributes monitor updates:
// per-tick snapshots and warning events.
package broadcaster

import (
	"sync"

	"github.com/google/uuid"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

// Kind discriminates the message payload.
type Kind int

const (
	// KindSnapshot carries a per-tick derived view.
	KindSnapshot Kind = iota
	// KindWarning carries a newly enqueued warning event.
	KindWarning
)

// Message is one update delivered to subscribers.
type Message struct {
	Kind     Kind                `json:"kind"`
	Snapshot *types.Snapshot     `json:"snapshot,omitempty"`
	Warning  *types.WarningEvent `json:"warning,omitempty"`
}

// Subscriber represents a client subscribed to monitor updates.
type Subscriber struct {
	ID       string
	Messages chan Message
}

// Broadcaster manages subscribers and distributes monitor updates. A slow
// subscriber drops messages rather than stalling the polling loop.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
}

// New creates a new Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe creates a new subscription for monitor updates.
func (b *Broadcaster) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:       uuid.New().String(),
		Messages: make(chan Message, 64),
	}

	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Messages)
		delete(b.subscribers, id)
	}
}

// PublishSnapshot sends a snapshot to all subscribers.
func (b *Broadcaster) PublishSnapshot(snap types.Snapshot) {
	b.publish(Message{Kind: KindSnapshot, Snapshot: &snap})
}

// PublishWarning sends a warning event to all subscribers.
func (b *Broadcaster) PublishWarning(ev types.WarningEvent) {
	b.publish(Message{Kind: KindWarning, Warning: &ev})
}

func (b *Broadcaster) publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		select {
		case sub.Messages <- msg:
		default:
			// Channel full, message dropped
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the broadcaster and all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, sub := range b.subscribers {
		close(sub.Messages)
		delete(b.subscribers, id)
	}
}
