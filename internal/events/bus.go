// Package events provides the in-process event bus decoupling the
// orchestrator from the serving layer: decisions, threshold adjustments and
// KPI updates are published here and fanned out to subscribers.
package events

import (
	"sync"
	"time"
)

// EventType tags the events the engine publishes.
type EventType string

const (
	EventDecisionMade       EventType = "DECISION_MADE"
	EventSignalGenerated    EventType = "SIGNAL_GENERATED"
	EventThresholdAdjusted  EventType = "THRESHOLD_ADJUSTED"
	EventOutcomeRecorded    EventType = "OUTCOME_RECORDED"
	EventKPIUpdate          EventType = "KPI_UPDATE"
	EventMicrostructureWarn EventType = "MICROSTRUCTURE_WARNING"
)

// Event is one published message.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles events. Subscribers must not block; slow consumers
// should buffer on their side.
type Subscriber func(Event)

// Bus manages publishing and subscriptions.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], sub)
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, sub)
}

// Publish delivers the event synchronously to all matching subscribers.
func (b *Bus) Publish(t EventType, data map[string]interface{}) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers[t])+len(b.allSubs))
	subs = append(subs, b.subscribers[t]...)
	subs = append(subs, b.allSubs...)
	b.mu.RUnlock()

	ev := Event{
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	for _, sub := range subs {
		sub(ev)
	}
}
