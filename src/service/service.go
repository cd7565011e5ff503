// Package service owns the application-wide STOMP client. The host creates
// one Service at start-up, calls Start, hands the Service to whoever needs
// messaging and calls Shutdown on teardown.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/config"
	"github.com/hongjunjie0928/jango-chatRoom/src/bridge"
	"github.com/hongjunjie0928/jango-chatRoom/src/client"
	"github.com/hongjunjie0928/jango-chatRoom/src/events"
	"github.com/hongjunjie0928/jango-chatRoom/src/types"
	"github.com/rs/zerolog"
)

// ErrStopped is returned by Start after Shutdown.
var ErrStopped = errors.New("stomp service stopped")

// Status is a point-in-time snapshot of the messaging layer.
type Status struct {
	State             string                   `json:"state"`
	Connected         bool                     `json:"connected"`
	Identity          string                   `json:"identity,omitempty"`
	Broker            string                   `json:"broker"`
	Session           *types.ConnectedInfo     `json:"session,omitempty"`
	Subscriptions     []types.SubscriptionInfo `json:"subscriptions"`
	Pending           []string                 `json:"pending"`
	Buffered          int                      `json:"buffered"`
	ReconnectAttempts int                      `json:"reconnect_attempts"`
	Relay             bool                     `json:"relay"`
	StartedAt         time.Time                `json:"started_at,omitempty"`
}

// Service bundles the client, the event bus and the optional Redis relay.
type Service struct {
	client   *client.Client
	bus      *events.Bus
	relayCfg *bridge.RedisConfig
	relay    bridge.Relay
	logger   zerolog.Logger

	mu        sync.Mutex
	started   bool
	stopped   bool
	startedAt time.Time
}

// New builds the service. relayCfg may be nil to run without a relay.
func New(cfg *config.StompConfig, relayCfg *bridge.RedisConfig, logger zerolog.Logger, opts ...client.Option) (*Service, error) {
	bus := events.New(logger)
	opts = append([]client.Option{client.WithEventBus(bus)}, opts...)
	c, err := client.New(cfg, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return &Service{
		client:   c,
		bus:      bus,
		relayCfg: relayCfg,
		logger:   logger.With().Str("component", "stomp-service").Logger(),
	}, nil
}

// Client returns the underlying STOMP client.
func (s *Service) Client() *client.Client { return s.client }

// Bus returns the process-wide event bus.
func (s *Service) Bus() *events.Bus { return s.bus }

// Start attaches the relay (non-fatal if Redis is unreachable) and connects
// as identity. A failed connect is returned; the service stays usable and
// Start may be called again until Shutdown.
func (s *Service) Start(ctx context.Context, identity string) (*types.ConnectedInfo, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	if !s.started {
		s.initRelay()
		s.started = true
		s.startedAt = time.Now()
	}
	s.mu.Unlock()

	info, err := s.client.Connect(ctx, identity)
	if err != nil {
		s.logger.Error().Err(err).Str("identity", identity).Msg("initial connect failed")
		return nil, err
	}
	return info, nil
}

// initRelay tries to start the Redis event relay.
// If Redis is not reachable, events stay process-local.
func (s *Service) initRelay() {
	if s.relayCfg == nil || !s.relayCfg.Enabled {
		return
	}
	rr := bridge.NewRedisRelay(s.relayCfg, s.bus, s.logger)
	if err := rr.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("redis relay unavailable, running standalone")
		_ = rr.Stop()
		return
	}
	s.relay = rr
	s.bus.SetBridge(rr)
	s.logger.Info().Str("redis_addr", s.relayCfg.Addr).Msg("redis relay connected")
}

// Shutdown closes the client and the relay. It is terminal: the client
// cannot be reused and later Start calls return ErrStopped. It is safe to
// call more than once.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.client.Close() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.relay != nil {
		s.bus.SetBridge(nil)
		if stopErr := s.relay.Stop(); stopErr != nil {
			s.logger.Error().Err(stopErr).Msg("relay stop error")
		}
		s.relay = nil
	}
	s.stopped = true
	s.logger.Info().Msg("stomp service stopped")
	return err
}

// Subscribe registers handler for destination.
func (s *Service) Subscribe(destination string, handler types.MessageHandler) {
	s.client.Subscribe(destination, handler)
	s.logger.Debug().Str("destination", destination).Msg("subscribe requested")
}

// Unsubscribe removes one subscription for destination.
func (s *Service) Unsubscribe(destination string) {
	s.client.Unsubscribe(destination)
	s.logger.Debug().Str("destination", destination).Msg("unsubscribe requested")
}

// Publish sends body to destination.
func (s *Service) Publish(destination string, body any, headers map[string]string, opts ...client.PublishOptions) client.PublishResult {
	return s.client.Publish(destination, body, headers, opts...)
}

// FlushBuffer sends deferred publishes.
func (s *Service) FlushBuffer() int {
	return s.client.FlushBuffer()
}

// Status returns a snapshot for diagnostics.
func (s *Service) Status() Status {
	s.mu.Lock()
	relay := s.relay != nil && s.relay.Available()
	startedAt := s.startedAt
	s.mu.Unlock()

	state := s.client.State()
	return Status{
		State:             state.String(),
		Connected:         state == client.Connected,
		Identity:          s.client.Identity(),
		Broker:            s.client.Config().BrokerURL,
		Session:           s.client.Info(),
		Subscriptions:     s.client.Subscriptions(),
		Pending:           s.client.PendingSubscriptions(),
		Buffered:          s.client.BufferLen(),
		ReconnectAttempts: s.client.ReconnectAttempts(),
		Relay:             relay,
		StartedAt:         startedAt,
	}
}
