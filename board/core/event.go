// ABOUTME: Event is the notification broadcast after each committed board mutation.
// ABOUTME: EventBroadcaster fans events out to subscribers without blocking the actor.
package core

import (
	"sync"
	"time"
)

// EventKind names what a commit changed.
type EventKind string

const (
	EventGestureApplied   EventKind = "gesture_applied"
	EventCardCreated      EventKind = "card_created"
	EventCardUpdated      EventKind = "card_updated"
	EventCardFinalized    EventKind = "card_finalized"
	EventCardRestored     EventKind = "card_restored"
	EventCardDeleted      EventKind = "card_deleted"
	EventViewChanged      EventKind = "view_changed"
	EventSearchChanged    EventKind = "search_changed"
	EventSelectionChanged EventKind = "selection_changed"
	EventBoardReloaded    EventKind = "board_reloaded"
)

// Event is an immutable record of one commit.
type Event struct {
	EventID   uint64    `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
	CardID    string    `json:"cardId,omitempty"`
	Lane      string    `json:"lane,omitempty"`
	ActorID   string    `json:"actorId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// EventBroadcaster provides a fan-out mechanism for events to multiple subscribers.
// Each subscriber gets a buffered channel. Broadcast is non-blocking (drops if full).
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers []chan Event
	bufferSize  int
}

// NewEventBroadcaster creates a broadcaster with no initial subscribers.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{bufferSize: 1024}
}

// Subscribe creates a new buffered channel for receiving broadcast events.
func (b *EventBroadcaster) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.bufferSize)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Unsubscribe removes a channel from the subscriber list and closes it.
func (b *EventBroadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Broadcast sends an event to all subscribers. A subscriber whose buffer is
// full misses the event; subscribers that must not miss state should re-read
// the board rather than rely on individual events.
func (b *EventBroadcaster) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// closeAll closes every subscriber channel.
func (b *EventBroadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
