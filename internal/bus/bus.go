// Package bus provides the in-process pub/sub channel between the task store
// and its best-effort consumers (the analytics notifier and the WebSocket
// event feed). Delivery is non-blocking: a slow subscriber misses events
// rather than stalling a mutating request.
package bus

import (
	"strings"
	"sync"
)

const defaultBufferSize = 100

// Task lifecycle topics published by the store.
const (
	TopicTaskCreated = "task.created"
	TopicTaskUpdated = "task.updated"
	TopicTaskDeleted = "task.deleted"
)

// Event is a message published on the bus.
type Event struct {
	Topic   string
	Payload any
}

// TaskEvent is the payload for all task.* topics.
type TaskEvent struct {
	TaskID   int64  // task the event concerns
	Status   string // status after the mutation ("" for deletes)
	TraceID  string // request trace ID, "-" if absent
	Affected int    // dependents touched (deletes only)
}

// Subscription is an active topic-prefix subscription.
type Subscription struct {
	id     int
	prefix string
	ch     chan Event
}

// Ch returns the channel to receive events on. It is closed by Unsubscribe.
func (s *Subscription) Ch() <-chan Event { return s.ch }

// Bus fans events out to prefix-matched subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*Subscription
	nextID int
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Subscribe registers for events whose topic starts with topicPrefix.
// An empty prefix matches everything. The subscription buffers 100 events;
// once full, further events are dropped for that subscriber.
func (b *Bus) Subscribe(topicPrefix string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		prefix: topicPrefix,
		ch:     make(chan Event, defaultBufferSize),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish sends an event to every matching subscriber without blocking.
func (b *Bus) Publish(topic string, payload any) {
	event := Event{Topic: topic, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.prefix == "" || strings.HasPrefix(topic, sub.prefix) {
			select {
			case sub.ch <- event:
			default:
				// Buffer full; drop for this subscriber.
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
