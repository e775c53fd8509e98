package events

import (
	"sync"
	"time"
)

// Event is a single engine occurrence published to observers.
type Event struct {
	Name       string
	OccurredAt time.Time
	Fields     map[string]interface{}
}

// Handler consumes published events. Handlers run synchronously on the
// publishing goroutine and must not block.
type Handler func(Event)

// Subscription identifies a registered handler and allows its removal.
type Subscription struct {
	id      int
	emitter *Emitter
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.emitter == nil {
		return
	}
	s.emitter.remove(s.id)
	s.emitter = nil
}

// Emitter is an explicitly owned observable: callers construct it, wire it
// into services and manage subscriber lifecycles. There is no package-level
// instance.
type Emitter struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

// NewEmitter constructs an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[int]Handler)}
}

// Subscribe registers a handler for all subsequent events.
func (e *Emitter) Subscribe(h Handler) *Subscription {
	if h == nil {
		return &Subscription{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.handlers[id] = h
	return &Subscription{id: id, emitter: e}
}

// Emit publishes an event to every live subscriber.
func (e *Emitter) Emit(name string, fields map[string]interface{}) {
	if e == nil {
		return
	}
	evt := Event{Name: name, OccurredAt: time.Now().UTC(), Fields: fields}
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers))
	for _, h := range e.handlers {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		h(evt)
	}
}

func (e *Emitter) remove(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, id)
}
