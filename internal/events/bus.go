// Package events carries adapter status notifications between the
// component that observes the instance and the components that react
// to connectivity changes.
package events

import "sync"

// Status names the connectivity state announced by a status event.
type Status string

const (
	// StatusOnline is emitted when the instance answered a healthcheck
	// with a usable reply.
	StatusOnline Status = "ONLINE"

	// StatusOffline is emitted when a healthcheck failed or found the
	// instance hibernating.
	StatusOffline Status = "OFFLINE"
)

// StatusEvent is the payload delivered with every status emission. It
// carries the identity of the adapter that observed the state and
// nothing else.
type StatusEvent struct {
	ID string `json:"id"`
}

// Handler reacts to a single status emission.
type Handler func(status Status, event StatusEvent)

// Bus fans status events out to subscribed handlers.
//
// Handlers run synchronously on the publishing goroutine, in
// subscription order, so a slow handler delays the publisher. Handlers
// that do real work should hand the event off to their own goroutine.
// Every publish reaches every matching handler: the bus does not
// deduplicate consecutive emissions of the same status.
//
// The zero value is ready to use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Status][]Handler
	all      []Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler that runs for emissions of one status.
func (b *Bus) Subscribe(status Status, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[Status][]Handler)
	}
	b.handlers[status] = append(b.handlers[status], h)
}

// SubscribeAll registers a handler that runs for every emission.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish delivers the event to handlers subscribed to its status,
// then to handlers subscribed to all statuses.
func (b *Bus) Publish(status Status, event StatusEvent) {
	b.mu.RLock()
	matched := make([]Handler, 0, len(b.handlers[status])+len(b.all))
	matched = append(matched, b.handlers[status]...)
	matched = append(matched, b.all...)
	b.mu.RUnlock()

	for _, h := range matched {
		h(status, event)
	}
}
