package match

import (
	"log/slog"
	"sync"
)

// EventKind names a lifecycle event on the public observer surface. Listeners
// subscribe with an explicit token they can later use to unsubscribe.
type EventKind string

const (
	EventMatchCreated    EventKind = "match-created"
	EventCountdown       EventKind = "countdown"
	EventMatchStarted    EventKind = "match-started"
	EventPlayerLagging   EventKind = "player-lagging"
	EventPlayerTimeout   EventKind = "player-timeout"
	EventPlayerDisconnected EventKind = "player-disconnected"
	EventPlayerReconnected  EventKind = "player-reconnected"
	EventDesyncDetected  EventKind = "desync-detected"
	EventMatchEnded      EventKind = "match-ended"
)

// Event is a single occurrence dispatched to subscribers. Payload's shape
// depends on Kind; embedders type-assert it.
type Event struct {
	Kind    EventKind
	MatchID string
	Payload any
}

// Listener receives events for the kinds it subscribed to. A listener must
// never block or panic the caller; EventBus recovers panics and logs them.
type Listener func(Event)

// Subscription is an opaque handle returned by Subscribe; pass it to
// Unsubscribe to stop receiving events. Mirrors the explicit
// subscribe/unsubscribe-token shape used across the design notes instead of
// bare function removal by identity.
type Subscription uint64

type subscriber struct {
	kind EventKind
	fn   Listener
}

// EventBus is the embedder-facing observer registration surface. Internally
// every Match emits into the same bus (passed in at construction); the bus
// never exposes direct mutation of match state, only fire-and-forget events.
type EventBus struct {
	mu        sync.Mutex
	next      Subscription
	listeners map[Subscription]subscriber
	log       *slog.Logger
}

// NewEventBus creates an empty event bus. log may be nil, in which case
// slog.Default() is used.
func NewEventBus(log *slog.Logger) *EventBus {
	if log == nil {
		log = slog.Default()
	}
	return &EventBus{listeners: make(map[Subscription]subscriber), log: log}
}

// Subscribe registers fn for events of the given kind and returns a token
// whose release (Unsubscribe) removes the listener.
func (b *EventBus) Subscribe(kind EventKind, fn Listener) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	token := b.next
	b.listeners[token] = subscriber{kind: kind, fn: fn}
	return token
}

// Unsubscribe releases a previously returned token. Safe to call twice.
func (b *EventBus) Unsubscribe(token Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, token)
}

// Emit dispatches e to every listener subscribed to e.Kind. A panicking or
// slow listener never blocks scheduler progress: panics are recovered and
// logged, and listeners are invoked synchronously but are expected to be
// cheap (embedders that need async work should hand off themselves).
func (b *EventBus) Emit(e Event) {
	b.mu.Lock()
	fns := make([]Listener, 0, len(b.listeners))
	for _, s := range b.listeners {
		if s.kind == e.Kind {
			fns = append(fns, s.fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range fns {
		b.safeInvoke(fn, e)
	}
}

func (b *EventBus) safeInvoke(fn Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event listener panicked", "tag", "events", "kind", string(e.Kind), "matchId", e.MatchID, "panic", r)
		}
	}()
	fn(e)
}
