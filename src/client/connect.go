package client

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/src/events"
	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
	"github.com/hongjunjie0928/jango-chatRoom/src/transport"
	"github.com/hongjunjie0928/jango-chatRoom/src/types"
)

// ConnectOptions tune a single connect call.
type ConnectOptions struct {
	// Timeout overrides the configured connection timeout.
	Timeout time.Duration
	// Headers are merged over the configured CONNECT headers.
	Headers map[string]string
}

// Connect starts (or joins) a connection attempt and waits for its outcome.
func (c *Client) Connect(ctx context.Context, identity string, opts ...ConnectOptions) (*types.ConnectedInfo, error) {
	return c.ConnectAsync(identity, opts...).Wait(ctx)
}

// ConnectAsync starts a connection attempt without blocking. While connected
// the returned future is already resolved; while connecting every caller
// shares the in-flight attempt.
func (c *Client) ConnectAsync(identity string, opts ...ConnectOptions) *Future {
	var o ConnectOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return resolvedFuture(nil, ErrClientClosed)
	}
	switch c.state {
	case Connected:
		c.logger.Warn().Str("identity", c.identity).Msg("client already connected")
		info := *c.info
		return resolvedFuture(&info, nil)
	case Connecting:
		if c.future == nil {
			c.future = newFuture()
		}
		return c.future
	}

	c.explicit = false
	c.reconnecting = false
	c.identity = identity
	c.connectOpts = o
	c.future = newFuture()
	future := c.future
	c.startAttemptLocked()
	return future
}

// Disconnect closes the session. Graceful sends DISCONNECT first; force
// closes the socket immediately. It never triggers reconnects or error hooks.
func (c *Client) Disconnect(force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.explicit = true
	c.reconnecting = false
	c.stopTimerLocked()

	prev := c.state
	if c.handle != nil {
		c.state = Disconnecting
		h := c.handle
		c.handle = nil
		c.gen++
		if err := h.Close(!force); err != nil {
			c.logger.Warn().Err(err).Msg("transport close failed")
		}
	}

	c.resolveFutureLocked(nil, ErrDisconnected)

	if prev == Idle {
		return
	}
	c.state = Disconnected
	c.info = nil
	if prev == Connected {
		c.demoteLiveLocked()
		c.logger.Info().Bool("force", force).Msg("disconnected")
		c.notifyDisconnectedLocked(nil)
	}
}

// startAttemptLocked opens a new transport session and arms the handshake
// timeout. Callbacks from older sessions are ignored by generation.
func (c *Client) startAttemptLocked() {
	c.stopTimerLocked()
	c.gen++
	gen := c.gen
	c.state = Connecting

	timeout := c.cfg.ConnectionTimeout()
	if c.connectOpts.Timeout > 0 {
		timeout = c.connectOpts.Timeout
	}

	req := transport.OpenRequest{
		URL:               c.cfg.BrokerURL,
		Identity:          c.identity,
		Header:            c.connectHeaderLocked(),
		HeartbeatOutgoing: c.cfg.HeartbeatOutgoing(),
		HeartbeatIncoming: c.cfg.HeartbeatIncoming(),
		ChunkSize:         c.cfg.ChunkSize(),
	}
	c.logger.Info().
		Str("broker", c.cfg.BrokerURL).
		Str("identity", c.identity).
		Bool("reconnect", c.reconnecting).
		Dur("timeout", timeout).
		Msg("connecting")

	h, err := c.transport.Open(req, c.sessionEvents(gen))
	if err != nil {
		c.failAttemptLocked(newError(TransportError, ErrTransport, err))
		return
	}
	c.handle = h
	c.armTimerLocked(timeout, c.onHandshakeTimeout)
}

func (c *Client) connectHeaderLocked() frame.Header {
	h := frame.Header(maps.Clone(c.cfg.ConnectHeaders))
	if h == nil {
		h = make(frame.Header)
	}
	maps.Copy(h, c.connectOpts.Headers)
	if h.Get(frame.HdrHost) == "" {
		if u, err := url.Parse(c.cfg.BrokerURL); err == nil && u.Hostname() != "" {
			h[frame.HdrHost] = u.Hostname()
		}
	}
	h["user-id"] = c.identity
	h["client-id"] = fmt.Sprintf("client-%s-%d", c.identity, time.Now().UnixMilli())
	return h
}

func (c *Client) sessionEvents(gen uint64) transport.Events {
	return transport.Events{
		OnConnected: func(f *frame.Frame) { c.onConnected(gen, f) },
		OnFrame:     func(f *frame.Frame) { c.onFrame(gen, f) },
		OnProtocolError: func(f *frame.Frame) {
			c.onFailure(gen, protocolError(f))
		},
		OnTransportError: func(err error) {
			c.onFailure(gen, newError(TransportError, ErrTransport, err))
		},
		OnClose: func(err error) {
			c.onClosed(gen, err)
		},
	}
}

func (c *Client) onConnected(gen uint64, f *frame.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != Connecting {
		return
	}
	c.stopTimerLocked()
	c.state = Connected
	c.attempts = 0
	c.reconnecting = false
	c.info = &types.ConnectedInfo{
		Version:     f.Get(frame.HdrVersion),
		Server:      f.Get(frame.HdrServer),
		Session:     f.Get(frame.HdrSession),
		Identity:    c.identity,
		Headers:     maps.Clone(f.Header),
		ConnectedAt: time.Now(),
	}
	c.logger.Info().
		Str("identity", c.identity).
		Str("version", c.info.Version).
		Str("session", c.info.Session).
		Msg("stomp connection established")

	c.replayLocked()
	if c.cfg.FlushOnReconnect {
		c.flushLocked()
	}

	info := *c.info
	hooks := c.hooks
	fns := make([]func(), 0, 2)
	if hooks.OnConnect != nil {
		fns = append(fns, func() { hooks.OnConnect(&info) })
	}
	fns = append(fns, c.emitFn(events.Connected, map[string]any{
		"version": info.Version,
		"session": info.Session,
	}))
	c.dispatch.enqueue(fns...)
	c.resolveFutureLocked(&info, nil)
}

// resolveFutureLocked completes the pending connect future in place. It never
// goes through the dispatcher, so hooks may call Connect and wait on it.
func (c *Client) resolveFutureLocked(info *types.ConnectedInfo, err error) {
	if c.future == nil {
		return
	}
	c.future.complete(info, err)
	c.future = nil
}

// onFailure handles protocol and transport errors of the current session.
func (c *Client) onFailure(gen uint64, e *Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	switch c.state {
	case Connecting:
		c.failAttemptLocked(e)
	case Connected:
		c.loseConnectionLocked(e, e)
	}
}

// onClosed handles a session ending without a prior error callback.
func (c *Client) onClosed(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	switch c.state {
	case Connecting:
		detail := err
		if detail == nil {
			detail = fmt.Errorf("connection closed during handshake")
		}
		c.failAttemptLocked(newError(TransportError, ErrTransport, detail))
	case Connected:
		if err == nil {
			err = fmt.Errorf("%w: connection closed", ErrTransport)
		}
		c.loseConnectionLocked(nil, err)
	}
}

func (c *Client) onHandshakeTimeout() {
	if c.state != Connecting {
		return
	}
	c.failAttemptLocked(newError(HandshakeTimeout, ErrConnectTimeout, nil))
}

// failAttemptLocked moves Connecting to Disconnected. Only automatic
// reconnect attempts schedule another attempt; a failed explicit connect
// leaves recovery to the caller.
func (c *Client) failAttemptLocked(e *Error) {
	c.stopTimerLocked()
	c.dropHandleLocked()
	c.state = Disconnected
	c.reportLocked(e)

	c.resolveFutureLocked(nil, e)
	if c.reconnecting {
		c.scheduleReconnectLocked()
	}
}

// loseConnectionLocked moves Connected to Disconnected after an unexpected
// close. report is nil for a plain close.
func (c *Client) loseConnectionLocked(report *Error, cause error) {
	c.stopTimerLocked()
	c.dropHandleLocked()
	c.state = Disconnected
	c.info = nil
	c.demoteLiveLocked()
	if report != nil {
		c.reportLocked(report)
	}
	c.logger.Warn().Err(cause).Msg("stomp connection lost")
	c.notifyDisconnectedLocked(cause)
	c.scheduleReconnectLocked()
}

func (c *Client) notifyDisconnectedLocked(cause error) {
	hooks := c.hooks
	var fns []func()
	if hooks.OnDisconnect != nil {
		fns = append(fns, func() { hooks.OnDisconnect(cause) })
	}
	data := map[string]any{}
	if cause != nil {
		data["error"] = cause.Error()
	}
	fns = append(fns, c.emitFn(events.Disconnected, data))
	c.dispatch.enqueue(fns...)
}

// dropHandleLocked force-closes the current session and invalidates its callbacks.
func (c *Client) dropHandleLocked() {
	c.gen++
	if c.handle == nil {
		return
	}
	h := c.handle
	c.handle = nil
	if err := h.Close(false); err != nil {
		c.logger.Debug().Err(err).Msg("transport close failed")
	}
}
