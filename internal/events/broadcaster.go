// Package events fans document notifications out to websocket subscribers.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/docshelf/backend/internal/metrics"
)

const (
	EventDocAdded     = "DocAdded"
	EventDocDeleted   = "DocDeleted"
	EventDocUpdated   = "DocUpdated"
	EventSyncComplete = "SyncComplete"
)

// Event is a change to one user's documents.
type Event struct {
	Type       string `json:"type"`
	UserID     string `json:"-"`
	DocumentID string `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	Parent     string `json:"parent,omitempty"`
	DocType    string `json:"docType,omitempty"`
	Version    int    `json:"version,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

type subscriber struct {
	userID string
}

// Broadcaster manages subscribers and publishes events to the subscribers
// of the event's user.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]subscriber
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]subscriber),
	}
}

// Subscribe adds a subscriber for userID and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe(userID string) chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = subscriber{userID: userID}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetWSConnectionsActive(n)
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetWSConnectionsActive(n)
}

// Publish sends an event to the subscribers of its user. Non-blocking:
// drops events for slow consumers.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, sub := range b.subscribers {
		if sub.userID != event.UserID {
			continue
		}
		select {
		case ch <- event:
		default:
		}
	}
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
