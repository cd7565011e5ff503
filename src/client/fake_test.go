package client_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/config"
	"github.com/hongjunjie0928/jango-chatRoom/src/client"
	"github.com/hongjunjie0928/jango-chatRoom/src/events"
	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
	"github.com/hongjunjie0928/jango-chatRoom/src/transport"
	"github.com/hongjunjie0928/jango-chatRoom/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeTransport records every session the client opens. Tests drive the
// session callbacks by hand.
type fakeTransport struct {
	mu       sync.Mutex
	sessions []*fakeSession
	openErr  error
}

func (t *fakeTransport) Open(req transport.OpenRequest, ev transport.Events) (transport.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	s := &fakeSession{req: req, ev: ev}
	t.sessions = append(t.sessions, s)
	return s, nil
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *fakeTransport) last() *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[len(t.sessions)-1]
}

type fakeSession struct {
	req transport.OpenRequest
	ev  transport.Events

	mu       sync.Mutex
	sent     []*frame.Frame
	closed   bool
	graceful bool
	sendErr  error
}

func (s *fakeSession) Send(f *frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, f)
	return nil
}

func (s *fakeSession) Close(graceful bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.graceful = graceful
	return nil
}

func (s *fakeSession) isClosed() (closed, graceful bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.graceful
}

func (s *fakeSession) setSendErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

func (s *fakeSession) frames(command string) []*frame.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*frame.Frame
	for _, f := range s.sent {
		if f.Command == command {
			out = append(out, f)
		}
	}
	return out
}

func (s *fakeSession) connected() {
	s.ev.OnConnected(frame.New(frame.Connected,
		frame.HdrVersion, "1.2",
		frame.HdrSession, "sess-1",
		frame.HdrServer, "fake/1.0",
	))
}

func (s *fakeSession) drop(err error) {
	if err != nil {
		s.ev.OnTransportError(err)
	}
	s.ev.OnClose(err)
}

func (s *fakeSession) deliver(subID, destination, contentType, body string) {
	f := frame.New(frame.Message,
		frame.HdrSubscription, subID,
		frame.HdrDestination, destination,
		frame.HdrMessageID, "m-1",
	)
	if contentType != "" {
		f.Set(frame.HdrContentType, contentType)
	}
	f.Body = []byte(body)
	s.ev.OnFrame(f)
}

// recorder collects hook and bus activity in arrival order.
type recorder struct {
	mu    sync.Mutex
	calls []string
	errs  []*client.Error
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(name string) int {
	n := 0
	for _, c := range r.list() {
		if c == name {
			n++
		}
	}
	return n
}

func (r *recorder) classes() []client.Class {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]client.Class, 0, len(r.errs))
	for _, e := range r.errs {
		out = append(out, e.Class)
	}
	return out
}

func (r *recorder) hooks() client.Hooks {
	return client.Hooks{
		OnConnect:            func(_ *types.ConnectedInfo) { r.add("connect") },
		OnDisconnect:         func(error) { r.add("disconnect") },
		OnStompError:         func(*frame.Frame) { r.add("stomp_error") },
		OnWebSocketError:     func(error) { r.add("websocket_error") },
		OnReconnect:          func(int) { r.add("reconnect") },
		OnReconnectExhausted: func(int) { r.add("exhausted") },
		OnMessageError:       func(error, *types.Message) { r.add("message_error") },
		OnBufferDrop:         func(client.BufferEntry, error) { r.add("buffer_drop") },
		OnError: func(e *client.Error) {
			r.mu.Lock()
			r.errs = append(r.errs, e)
			r.mu.Unlock()
		},
	}
}

func testConfig() *config.StompConfig {
	cfg := config.DefaultConfig()
	cfg.BrokerURL = "ws://broker.test:61614/ws"
	cfg.ReconnectDelayMs = 50
	cfg.MaxReconnectAttempts = 3
	cfg.ConnectionTimeoutMs = 1000
	return cfg
}

type harness struct {
	c   *client.Client
	tr  *fakeTransport
	rec *recorder
	bus *events.Bus
}

func newHarness(t *testing.T, cfg *config.StompConfig) *harness {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	h := &harness{tr: &fakeTransport{}, rec: &recorder{}, bus: events.New(zerolog.Nop())}
	h.bus.On(events.All, func(ev events.Event) { h.rec.add("bus:" + ev.Name) })
	c, err := client.New(cfg, zerolog.Nop(),
		client.WithTransport(h.tr),
		client.WithHooks(h.rec.hooks()),
		client.WithEventBus(h.bus),
	)
	require.NoError(t, err)
	h.c = c
	t.Cleanup(func() { _ = c.Close() })
	return h
}

// connect performs a successful handshake on a new session.
func (h *harness) connect(t *testing.T, identity string) *fakeSession {
	t.Helper()
	future := h.c.ConnectAsync(identity)
	s := h.tr.last()
	s.connected()
	select {
	case <-future.Done():
	case <-time.After(time.Second):
		t.Fatal("connect future not resolved")
	}
	_, err := future.Result()
	require.NoError(t, err)
	return s
}

func (h *harness) waitFor(t *testing.T, name string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.rec.count(name) >= n },
		2*time.Second, 5*time.Millisecond, "waiting for %d x %s, got %v", n, name, h.rec.list())
}

var errSocket = errors.New("socket reset")

func nopLogger() zerolog.Logger { return zerolog.Nop() }
