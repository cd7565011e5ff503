package client

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
	"github.com/hongjunjie0928/jango-chatRoom/src/types"
)

// intent is a subscription the caller asked for, live or not.
type intent struct {
	destination string
	handler     types.MessageHandler
	requestedAt time.Time
}

// liveSubscription is an intent registered with the broker in the current session.
type liveSubscription struct {
	id           string
	intent       intent
	subscribedAt time.Time
}

// Subscribe registers handler for destination. While connected the broker
// subscription is created immediately; otherwise the intent waits for the
// next successful connection. Send failures are logged, not returned.
func (c *Client) Subscribe(destination string, handler types.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.logger.Warn().Str("destination", destination).Msg("subscribe on closed client ignored")
		return
	}

	in := intent{destination: destination, handler: handler, requestedAt: time.Now()}
	if c.state != Connected {
		c.pending = append(c.pending, in)
		c.logger.Debug().Str("destination", destination).Int("pending", len(c.pending)).Msg("subscription queued")
		return
	}
	if !c.subscribeLocked(in) {
		c.pending = append(c.pending, in)
	}
}

// Unsubscribe removes the first live subscription for destination, or the
// first pending intent if none is live.
func (c *Client) Unsubscribe(destination string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, sub := range c.live {
		if sub.intent.destination != destination {
			continue
		}
		c.live = append(c.live[:i], c.live[i+1:]...)
		if c.handle != nil && c.state == Connected {
			f := frame.New(frame.Unsubscribe, frame.HdrID, sub.id)
			c.traceLocked(f)
			if err := c.handle.Send(f); err != nil {
				c.logger.Warn().Err(err).Str("destination", destination).Str("id", sub.id).Msg("unsubscribe send failed")
			}
		}
		c.logger.Info().Str("destination", destination).Str("id", sub.id).Msg("unsubscribed")
		return
	}
	for i, in := range c.pending {
		if in.destination == destination {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			c.logger.Debug().Str("destination", destination).Msg("pending subscription removed")
			return
		}
	}
}

// Subscriptions returns the live subscriptions in registration order.
func (c *Client) Subscriptions() []types.SubscriptionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.SubscriptionInfo, 0, len(c.live))
	for _, sub := range c.live {
		out = append(out, types.SubscriptionInfo{
			ID:           sub.id,
			Destination:  sub.intent.destination,
			SubscribedAt: sub.subscribedAt,
		})
	}
	return out
}

// PendingSubscriptions returns the destinations awaiting a connection, in order.
func (c *Client) PendingSubscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.pending))
	for _, in := range c.pending {
		out = append(out, in.destination)
	}
	return out
}

// subscribeLocked sends SUBSCRIBE for in and records it as live.
func (c *Client) subscribeLocked(in intent) bool {
	id := "sub-" + uuid.NewString()
	f := frame.New(frame.Subscribe,
		frame.HdrID, id,
		frame.HdrDestination, in.destination,
		frame.HdrAck, "auto",
	)
	c.traceLocked(f)
	if err := c.handle.Send(f); err != nil {
		c.logger.Warn().Err(err).Str("destination", in.destination).Msg("subscribe send failed")
		return false
	}
	c.live = append(c.live, &liveSubscription{id: id, intent: in, subscribedAt: time.Now()})
	c.logger.Info().Str("destination", in.destination).Str("id", id).Msg("subscribed")
	return true
}

// replayLocked registers every pending intent in insertion order and
// clears the queue. Intents whose send fails stay pending.
func (c *Client) replayLocked() {
	if len(c.pending) == 0 {
		return
	}
	queued := c.pending
	c.pending = nil
	for _, in := range queued {
		if !c.subscribeLocked(in) {
			c.pending = append(c.pending, in)
		}
	}
	c.logger.Debug().Int("replayed", len(queued)-len(c.pending)).Int("pending", len(c.pending)).Msg("subscriptions replayed")
}

// demoteLiveLocked moves live subscriptions of a dead session back to the
// front of the pending queue, keeping their order.
func (c *Client) demoteLiveLocked() {
	if len(c.live) == 0 {
		return
	}
	demoted := make([]intent, 0, len(c.live)+len(c.pending))
	for _, sub := range c.live {
		demoted = append(demoted, sub.intent)
	}
	c.pending = append(demoted, c.pending...)
	c.live = nil
}

// onFrame handles non-handshake frames of the current session.
func (c *Client) onFrame(gen uint64, f *frame.Frame) {
	c.mu.Lock()
	if gen != c.gen || c.state != Connected {
		c.mu.Unlock()
		return
	}
	c.traceLocked(f)
	if f.Command != frame.Message {
		c.mu.Unlock()
		return
	}

	subID := f.Get(frame.HdrSubscription)
	var handler types.MessageHandler
	for _, sub := range c.live {
		if sub.id == subID {
			handler = sub.intent.handler
			break
		}
	}
	if handler == nil {
		c.logger.Debug().Str("subscription", subID).Msg("message for unknown subscription dropped")
		c.mu.Unlock()
		return
	}

	msg := &types.Message{
		Destination:    f.Get(frame.HdrDestination),
		SubscriptionID: subID,
		MessageID:      f.Get(frame.HdrMessageID),
		Headers:        f.Header.Clone(),
		Body:           f.Body,
		ReceivedAt:     time.Now(),
	}
	if err := decodePayload(f, msg); err != nil {
		c.reportMessageErrorLocked(fmt.Errorf("%w: %w", ErrDecode, err), msg)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.dispatch.enqueue(func() { c.deliver(handler, msg) })
}

func (c *Client) deliver(handler types.MessageHandler, msg *types.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.mu.Lock()
			c.reportMessageErrorLocked(fmt.Errorf("%w: handler panic: %v", ErrDecode, r), msg)
			c.mu.Unlock()
		}
	}()
	handler(msg)
}

// reportMessageErrorLocked reports a DecodeError; connection state is untouched.
func (c *Client) reportMessageErrorLocked(err error, msg *types.Message) {
	if hook := c.hooks.OnMessageError; hook != nil {
		c.dispatch.enqueue(func() { hook(err, msg) })
	}
	c.reportLocked(&Error{Class: DecodeError, Err: err})
}

// decodePayload fills msg.Payload. JSON bodies (or bodies without a
// content-type) are decoded; anything else is exposed as a string.
func decodePayload(f *frame.Frame, msg *types.Message) error {
	if len(f.Body) == 0 {
		return nil
	}
	ct := f.Get(frame.HdrContentType)
	if ct != "" && !strings.Contains(ct, "json") {
		msg.Payload = string(f.Body)
		return nil
	}
	var v any
	if err := json.Unmarshal(f.Body, &v); err != nil {
		return err
	}
	msg.Payload = v
	return nil
}

func (c *Client) traceLocked(f *frame.Frame) {
	if !c.cfg.Debug {
		return
	}
	c.logger.Debug().Str("frame", f.String()).Msg("stomp frame")
}
