// Package eventbus implements the dashboard subscription fan-out
// (component 4.J): every registry mutation arrives as one events.Event and
// is routed to the dashboard subscribers that opted into that station,
// best-effort and non-blocking. It implements events.Publisher so the
// registries depend on nothing more than that interface.
package eventbus

import (
	"sync"

	"github.com/chargepoint/central-system/internal/events"
	"github.com/chargepoint/central-system/internal/metrics"
)

// SubscriberQueueSize bounds each subscriber's pending-event channel. A
// subscriber that falls behind this far loses its newest events rather
// than stalling the publisher.
const SubscriberQueueSize = 64

// Bus fans out events to dashboard subscribers. Safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber

	mirror func(events.Event) // optional external sink (Kafka), best-effort
}

// New builds an empty Bus. mirror, if non-nil, is invoked for every
// published event in addition to dashboard fan-out — used to feed the
// optional Kafka integration without coupling the two.
func New(mirror func(events.Event)) *Bus {
	return &Bus{subscribers: make(map[string]*Subscriber), mirror: mirror}
}

// Subscriber is one dashboard client's delivery channel plus its opt-in
// station filter. An empty filter means "subscribed to nothing" per the
// default opt-in policy — NOT "all".
type Subscriber struct {
	id       string
	queue    chan events.Event
	mu       sync.RWMutex
	stations map[string]bool
}

func newSubscriber(id string) *Subscriber {
	return &Subscriber{id: id, queue: make(chan events.Event, SubscriberQueueSize), stations: make(map[string]bool)}
}

// Events returns the subscriber's delivery channel.
func (s *Subscriber) Events() <-chan events.Event { return s.queue }

// Subscribe adds stationID to the subscriber's filter.
func (s *Subscriber) Subscribe(stationID string) {
	s.mu.Lock()
	s.stations[stationID] = true
	s.mu.Unlock()
}

// Unsubscribe removes stationID from the subscriber's filter.
func (s *Subscriber) Unsubscribe(stationID string) {
	s.mu.Lock()
	delete(s.stations, stationID)
	s.mu.Unlock()
}

func (s *Subscriber) wants(stationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stations[stationID]
}

// Join registers a new subscriber and returns it; the caller (the
// dashboard WebSocket handler) drives Subscribe/Unsubscribe from inbound
// control messages and reads Events() to push frames out.
func (b *Bus) Join(id string) *Subscriber {
	sub := newSubscriber(id)
	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()
	return sub
}

// Leave removes a subscriber, e.g. when its connection closes.
func (b *Bus) Leave(id string) {
	b.mu.Lock()
	delete(b.subscribers, id)
	b.mu.Unlock()
}

// Publish implements events.Publisher. It never blocks: a subscriber whose
// queue is full drops the newest event instead of stalling the registry
// mutation that produced it.
func (b *Bus) Publish(evt events.Event) {
	if b.mirror != nil {
		b.mirror(evt)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if !sub.wants(evt.ChargePointID) {
			continue
		}
		select {
		case sub.queue <- evt:
		default:
			metrics.EventBusDrops.WithLabelValues(string(evt.Topic)).Inc()
		}
	}
}

// SubscriberCount reports the number of joined subscribers, exposed for
// diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
