// Package client implements a resilient STOMP pub/sub client. It keeps one
// logical broker connection, replays subscriptions after reconnects, buffers
// publishes on request while offline and classifies failures for hooks and
// the process-wide event bus.
package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/config"
	"github.com/hongjunjie0928/jango-chatRoom/src/events"
	"github.com/hongjunjie0928/jango-chatRoom/src/transport"
	"github.com/hongjunjie0928/jango-chatRoom/src/types"
	"github.com/rs/zerolog"
)

// Client is a STOMP client. All state lives behind one mutex; hooks and bus
// events run afterwards on a dispatcher goroutine in transition order.
type Client struct {
	cfg       *config.StompConfig
	hooks     Hooks
	transport transport.Transport
	bus       *events.Bus
	logger    zerolog.Logger
	dispatch  *dispatcher

	mu           sync.Mutex
	state        State
	identity     string
	connectOpts  ConnectOptions
	attempts     int
	explicit     bool
	closed       bool
	reconnecting bool
	gen          uint64
	handle       transport.Handle
	timer        *time.Timer
	timerGen     uint64
	future       *Future
	info         *types.ConnectedInfo

	live    []*liveSubscription
	pending []intent
	buffer  *outboundBuffer
}

// Option customizes a Client.
type Option func(*Client)

// WithHooks installs lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(c *Client) { c.hooks = h }
}

// WithTransport replaces the default WebSocket transport.
func WithTransport(tr transport.Transport) Option {
	return func(c *Client) { c.transport = tr }
}

// WithEventBus publishes lifecycle events on bus.
func WithEventBus(bus *events.Bus) Option {
	return func(c *Client) { c.bus = bus }
}

// New creates a disconnected client. The configuration is copied.
func New(cfg *config.StompConfig, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()

	logger = logger.With().Str("component", "stomp-client").Logger()
	if !cfg.Debug && logger.GetLevel() < zerolog.InfoLevel {
		logger = logger.Level(zerolog.InfoLevel)
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		state:  Idle,
		buffer: newOutboundBuffer(cfg.QueueMaxSize, cfg.BufferPolicy),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = transport.NewWebSocket(logger)
	}
	c.dispatch = newDispatcher()
	return c, nil
}

// Config returns a copy of the client configuration.
func (c *Client) Config() *config.StompConfig { return c.cfg.Clone() }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether a broker session is established.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// Identity returns the identity of the last connect call.
func (c *Client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Info returns the current session details, or nil when not connected.
func (c *Client) Info() *types.ConnectedInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected || c.info == nil {
		return nil
	}
	info := *c.info
	return &info
}

// ReconnectAttempts returns the automatic reconnect counter.
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Close disconnects immediately and releases every subscription intent and
// buffered publish. The client cannot be reused.
func (c *Client) Close() error {
	c.Disconnect(true)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	dropped := len(c.pending) + len(c.live)
	c.live = nil
	c.pending = nil
	buffered := len(c.buffer.drain())
	c.mu.Unlock()

	c.logger.Info().
		Int("released_subscriptions", dropped).
		Int("discarded_publishes", buffered).
		Msg("client closed")
	c.dispatch.stop()
	return nil
}

func (c *Client) String() string {
	return fmt.Sprintf("stomp client %s (%s)", c.cfg.BrokerURL, c.State())
}
