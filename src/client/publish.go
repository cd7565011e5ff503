package client

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
)

// PublishResult is the outcome of Publish.
type PublishResult int

const (
	// PublishFailed means nothing was sent or queued.
	PublishFailed PublishResult = iota
	// PublishSent means the frame was handed to the transport.
	PublishSent
	// PublishDeferred means the message waits in the outbound buffer.
	PublishDeferred
)

func (r PublishResult) String() string {
	switch r {
	case PublishSent:
		return "sent"
	case PublishDeferred:
		return "deferred"
	default:
		return "failed"
	}
}

// OK reports whether the message was sent or accepted for later.
func (r PublishResult) OK() bool { return r != PublishFailed }

// PublishOptions tune a single publish.
type PublishOptions struct {
	// QueueWhileDisconnected buffers the message instead of failing when
	// there is no connection.
	QueueWhileDisconnected bool
}

const contentTypeJSON = "application/json"

// Publish sends body to destination. []byte and json.RawMessage bodies go
// out verbatim; anything else, strings included, is JSON encoded. Connectivity
// problems are reported through the result, never as an error value.
func (c *Client) Publish(destination string, body any, headers map[string]string, opts ...PublishOptions) PublishResult {
	var o PublishOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	msg, err := encodeOutbound(destination, body, headers)
	if err != nil {
		c.logger.Error().Err(err).Str("destination", destination).Msg("publish body encoding failed")
		return PublishFailed
	}
	if hook := c.hooks.OnBeforeSend; hook != nil {
		if out := hook(msg); out != nil {
			msg = out
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return PublishFailed
	}

	if c.state == Connected && c.handle != nil {
		if err := c.sendLocked(msg.Destination, msg.Headers, msg.Body); err != nil {
			c.logger.Warn().Err(err).Str("destination", msg.Destination).Msg("publish send failed")
			return PublishFailed
		}
		return PublishSent
	}

	if !o.QueueWhileDisconnected {
		c.logger.Debug().Str("destination", msg.Destination).Msg("publish while disconnected rejected")
		return PublishFailed
	}
	entry := BufferEntry{
		Destination: msg.Destination,
		Headers:     msg.Headers,
		Body:        msg.Body,
		QueuedAt:    time.Now(),
	}
	dropped, accepted := c.buffer.push(entry)
	if dropped != nil {
		c.reportDropLocked(*dropped)
	}
	if !accepted {
		return PublishFailed
	}
	return PublishDeferred
}

// FlushBuffer sends buffered publishes in order while connected and
// returns how many went out. Entries that fail to send stay buffered.
func (c *Client) FlushBuffer() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

// BufferLen returns the number of deferred publishes.
func (c *Client) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.len()
}

func (c *Client) flushLocked() int {
	if c.state != Connected || c.handle == nil || c.buffer.len() == 0 {
		return 0
	}
	entries := c.buffer.drain()
	for i, e := range entries {
		if err := c.sendLocked(e.Destination, e.Headers, e.Body); err != nil {
			c.logger.Warn().Err(err).Int("remaining", len(entries)-i).Msg("buffer flush interrupted")
			for _, lost := range c.buffer.prepend(entries[i:]) {
				c.reportDropLocked(lost)
			}
			return i
		}
	}
	c.logger.Info().Int("count", len(entries)).Msg("outbound buffer flushed")
	return len(entries)
}

func (c *Client) sendLocked(destination string, headers map[string]string, body []byte) error {
	f := frame.New(frame.Send, frame.HdrDestination, destination)
	for k, v := range headers {
		if k == frame.HdrContentLength {
			continue
		}
		f.Set(k, v)
	}
	f.Body = body
	c.traceLocked(f)
	return c.handle.Send(f)
}

func (c *Client) reportDropLocked(e BufferEntry) {
	err := fmt.Errorf("%w: dropped publish to %s", ErrBufferFull, e.Destination)
	if hook := c.hooks.OnBufferDrop; hook != nil {
		c.dispatch.enqueue(func() { hook(e, err) })
	}
	c.reportLocked(&Error{Class: BufferOverflow, Err: err})
}

func encodeOutbound(destination string, body any, headers map[string]string) (*OutboundMessage, error) {
	h := maps.Clone(headers)
	if h == nil {
		h = make(map[string]string)
	}
	var raw []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		raw = b
	case json.RawMessage:
		raw = b
		setDefault(h, frame.HdrContentType, contentTypeJSON)
	default:
		enc, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		raw = enc
		setDefault(h, frame.HdrContentType, contentTypeJSON)
	}
	return &OutboundMessage{Destination: destination, Headers: h, Body: raw}, nil
}

func setDefault(h map[string]string, k, v string) {
	if _, ok := h[k]; !ok {
		h[k] = v
	}
}
