// Package stomptest is a small in-process STOMP 1.2 broker served over
// WebSocket. It backs integration tests and local development of the client.
package stomptest

import (
	"sync"
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
	"github.com/rs/zerolog"
)

// Options change broker behaviour for failure-mode tests.
type Options struct {
	// Silent never answers CONNECT, so handshakes time out.
	Silent bool
	// Authenticate rejects a CONNECT with an ERROR frame when it returns false.
	Authenticate func(h frame.Header) bool
	// HeartBeat is the interval at which the broker sends heart-beats.
	HeartBeat time.Duration
}

// SessionInfo describes a connected session.
type SessionInfo struct {
	ID           string    `json:"id"`
	Identity     string    `json:"identity"`
	ConnectedAt  time.Time `json:"connected_at"`
	Destinations []string  `json:"destinations"`
}

// Published is a SEND frame accepted by the broker.
type Published struct {
	Destination string
	Headers     frame.Header
	Body        []byte
	SessionID   string
}

type inbound struct {
	session *session
	frame   *frame.Frame
}

type subscriber struct {
	session *session
	id      string
}

// Broker routes frames between sessions.
type Broker struct {
	opts         Options
	sessions     map[string]*session
	destinations map[string]map[string]subscriber // destination -> session/sub key

	register   chan *session
	unregister chan *session
	incoming   chan inbound

	published []Published
	onConnect []func(SessionInfo)
	onDisconn []func(SessionInfo)

	mu       sync.RWMutex
	logger   zerolog.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// NewBroker creates a broker. Call Run in a goroutine.
func NewBroker(logger zerolog.Logger, opts Options) *Broker {
	return &Broker{
		opts:         opts,
		sessions:     make(map[string]*session),
		destinations: make(map[string]map[string]subscriber),
		register:     make(chan *session),
		unregister:   make(chan *session),
		incoming:     make(chan inbound, 256),
		logger:       logger.With().Str("component", "stomp-broker").Logger(),
		done:         make(chan struct{}),
	}
}

// Run starts the broker event loop.
func (b *Broker) Run() {
	for {
		select {
		case s := <-b.register:
			b.addSession(s)
		case s := <-b.unregister:
			b.removeSession(s)
		case in := <-b.incoming:
			b.handleFrame(in.session, in.frame)
		case <-b.done:
			return
		}
	}
}

// Stop halts the event loop.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

func (b *Broker) addSession(s *session) {
	b.mu.Lock()
	b.sessions[s.ID] = s
	b.mu.Unlock()

	b.logger.Info().Str("session", s.ID).Str("identity", s.Identity).Msg("session registered")
}

func (b *Broker) removeSession(s *session) {
	b.mu.Lock()
	if _, ok := b.sessions[s.ID]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.sessions, s.ID)

	for dest, subs := range b.destinations {
		for key, sub := range subs {
			if sub.session == s {
				delete(subs, key)
			}
		}
		if len(subs) == 0 {
			delete(b.destinations, dest)
		}
	}
	callbacks := b.onDisconn
	b.mu.Unlock()

	info := s.Info()
	s.Close()
	b.logger.Info().Str("session", s.ID).Msg("session unregistered")

	for _, cb := range callbacks {
		cb(info)
	}
}

func subKey(s *session, id string) string { return s.ID + "/" + id }
