package client

import (
	"sync"
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/src/events"
	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
)

// dispatcher runs notifications one at a time, in submission order, outside
// the client lock.
type dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) enqueue(fns ...func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fns...)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		stopped := d.stopped
		d.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if len(batch) > 0 {
			continue
		}
		if stopped {
			return
		}
		<-d.wake
	}
}

// stop lets the goroutine drain queued notifications and exit. It does not
// wait, so hooks may close the client.
func (d *dispatcher) stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// reportLocked classifies a failure: log, matching hook, catch-all hook and
// a bus "error" event.
func (c *Client) reportLocked(e *Error) {
	log := c.logger.Error()
	if e.Class == DecodeError || e.Class == BufferOverflow {
		log = c.logger.Warn()
	}
	log.Err(e.Err).Str("class", e.Class.String()).Msg("stomp failure")

	hooks := c.hooks
	var fns []func()
	switch e.Class {
	case ProtocolError:
		if hooks.OnStompError != nil && e.Frame != nil {
			f := e.Frame
			fns = append(fns, func() { hooks.OnStompError(f) })
		}
	case TransportError:
		if hooks.OnWebSocketError != nil {
			fns = append(fns, func() { hooks.OnWebSocketError(e.Err) })
		}
	}
	if hooks.OnError != nil {
		fns = append(fns, func() { hooks.OnError(e) })
	}
	data := map[string]any{
		"class": e.Class.String(),
		"error": e.Err.Error(),
	}
	if e.Frame != nil {
		data["message"] = e.Frame.Get(frame.HdrMessage)
	}
	fns = append(fns, c.emitFn(events.Error, data))
	c.dispatch.enqueue(fns...)
}

// emitFn builds a bus emission bound to the current identity.
func (c *Client) emitFn(name string, data map[string]any) func() {
	bus := c.bus
	source := c.identity
	return func() {
		if bus == nil {
			return
		}
		bus.Emit(events.Event{
			Name:      name,
			Source:    source,
			Data:      data,
			Timestamp: time.Now(),
		})
	}
}
