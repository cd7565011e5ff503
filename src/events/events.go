// Package events is a process-wide notification bus keyed by event name.
// The application creates one Bus at start-up and hands it to whoever needs
// to observe or emit lifecycle events; there is no package-level instance.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event names emitted by the STOMP client.
const (
	Connected          = "connected"
	Disconnected       = "disconnected"
	Reconnecting       = "reconnecting"
	ReconnectExhausted = "reconnect-exhausted"
	Error              = "error"

	// All matches every event name in On and Subscribe.
	All = "*"
)

// Event is a named lifecycle notification.
type Event struct {
	Name      string         `json:"name"`
	Source    string         `json:"source,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Listener handles an event on the emitting goroutine.
type Listener func(ev Event)

// Bridge relays events to other processes.
type Bridge interface {
	Publish(ev Event) error
	Available() bool
}

// Bus fans events out to listeners registered by name.
type Bus struct {
	listeners map[string]map[uint64]Listener
	nextID    uint64

	bridge Bridge
	mu     sync.RWMutex
	logger zerolog.Logger
}

// New creates an empty bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		listeners: make(map[string]map[uint64]Listener),
		logger:    logger.With().Str("component", "event-bus").Logger(),
	}
}

// SetBridge attaches a cross-process relay. Emitted events are also
// forwarded to it.
func (b *Bus) SetBridge(br Bridge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bridge = br
}

// On registers a listener for name (or All) and returns its cancel func.
func (b *Bus) On(name string, fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.listeners[name] == nil {
		b.listeners[name] = make(map[uint64]Listener)
	}
	b.listeners[name][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs, ok := b.listeners[name]
		if !ok {
			return
		}
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.listeners, name)
		}
	}
}

// Subscribe returns a buffered channel receiving events for name (or All).
// Events are dropped when the channel is full. Cancel closes the channel.
func (b *Bus) Subscribe(name string, size int) (<-chan Event, func()) {
	ch := make(chan Event, size)
	var (
		mu     sync.Mutex
		closed bool
	)
	off := b.On(name, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		default:
			b.logger.Warn().Str("event", ev.Name).Msg("subscriber buffer full, dropping")
		}
	})
	return ch, func() {
		off()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
}

// Emit delivers ev to local listeners and forwards it to the bridge.
func (b *Bus) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.EmitLocal(ev)
	b.publishToBridge(ev)
}

// EmitLocal delivers an event to local listeners only. Bridges use it for
// events received from other processes so they are not re-published.
func (b *Bus) EmitLocal(ev Event) {
	for _, fn := range b.matching(ev.Name) {
		fn(ev)
	}
}

// ListenerCount returns the number of listeners registered for name.
func (b *Bus) ListenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

func (b *Bus) matching(name string) []Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fns := make([]Listener, 0, len(b.listeners[name])+len(b.listeners[All]))
	for _, fn := range b.listeners[name] {
		fns = append(fns, fn)
	}
	if name != All {
		for _, fn := range b.listeners[All] {
			fns = append(fns, fn)
		}
	}
	return fns
}

func (b *Bus) publishToBridge(ev Event) {
	b.mu.RLock()
	br := b.bridge
	b.mu.RUnlock()

	if br == nil || !br.Available() {
		return
	}
	if err := br.Publish(ev); err != nil {
		b.logger.Error().Err(err).Str("event", ev.Name).Msg("bridge publish failed")
	}
}
