package stomptest_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/config"
	"github.com/hongjunjie0928/jango-chatRoom/src/client"
	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
	"github.com/hongjunjie0928/jango-chatRoom/src/stomptest"
	"github.com/hongjunjie0928/jango-chatRoom/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, opts stomptest.Options) *stomptest.Server {
	t.Helper()
	srv := stomptest.NewServer(zerolog.Nop(), opts)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func newClient(t *testing.T, srv *stomptest.Server, tune func(*config.StompConfig)) *client.Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BrokerURL = srv.URL()
	cfg.ReconnectDelayMs = 50
	cfg.ConnectionTimeoutMs = 2000
	if tune != nil {
		tune(cfg)
	}
	c, err := client.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type inbox struct {
	mu   sync.Mutex
	msgs []*types.Message
}

func (i *inbox) handle(m *types.Message) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, m)
}

func (i *inbox) len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.msgs)
}

func (i *inbox) at(n int) *types.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.msgs[n]
}

func connect(t *testing.T, c *client.Client, identity string) *types.ConnectedInfo {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	info, err := c.Connect(ctx, identity)
	require.NoError(t, err)
	return info
}

func TestEndToEndPublishSubscribe(t *testing.T) {
	srv := startServer(t, stomptest.Options{})
	c := newClient(t, srv, nil)

	got := &inbox{}
	c.Subscribe("/topic/a", got.handle)
	info := connect(t, c, "u1")
	assert.Equal(t, "1.2", info.Version)
	assert.Equal(t, "stomptest/1.0", info.Server)

	require.Eventually(t, func() bool { return srv.Broker.Destinations()["/topic/a"] == 1 },
		2*time.Second, 10*time.Millisecond)
	sessions := srv.Broker.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "u1", sessions[0].Identity)

	assert.Equal(t, client.PublishSent, c.Publish("/topic/a", map[string]int{"x": 1}, nil))
	require.Eventually(t, func() bool { return got.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, map[string]any{"x": float64(1)}, got.at(0).Payload)

	published := srv.Broker.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "application/json", published[0].Headers.Get(frame.HdrContentType))
}

func TestEndToEndConnectHeaders(t *testing.T) {
	var mu sync.Mutex
	var seen frame.Header
	srv := startServer(t, stomptest.Options{Authenticate: func(h frame.Header) bool {
		mu.Lock()
		defer mu.Unlock()
		seen = h.Clone()
		return true
	}})
	c := newClient(t, srv, nil)
	connect(t, c, "u7")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "u7", seen.Get("user-id"))
	assert.True(t, strings.HasPrefix(seen.Get("client-id"), "client-u7-"))
	assert.Equal(t, "4000,4000", seen.Get(frame.HdrHeartBeat))
	assert.Equal(t, "127.0.0.1", seen.Get(frame.HdrHost))
}

func TestEndToEndReconnectRestoresSubscriptions(t *testing.T) {
	srv := startServer(t, stomptest.Options{})
	c := newClient(t, srv, nil)
	got := &inbox{}
	c.Subscribe("/queue/q", got.handle)
	connect(t, c, "u1")
	require.Eventually(t, func() bool { return srv.Broker.Destinations()["/queue/q"] == 1 },
		2*time.Second, 10*time.Millisecond)

	srv.Broker.DropAll()
	require.Eventually(t, func() bool { return !c.IsConnected() }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, c.IsConnected, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return srv.Broker.Destinations()["/queue/q"] == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Len(t, c.Subscriptions(), 1)
	assert.Equal(t, 0, c.ReconnectAttempts())

	assert.Equal(t, 1, srv.Broker.Publish("/queue/q", "application/json", []byte(`{"n":2}`)))
	require.Eventually(t, func() bool { return got.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, map[string]any{"n": float64(2)}, got.at(0).Payload)
}

func TestEndToEndAuthenticationFailure(t *testing.T) {
	srv := startServer(t, stomptest.Options{Authenticate: func(frame.Header) bool { return false }})
	c := newClient(t, srv, nil)

	_, err := c.Connect(context.Background(), "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrProtocol)
	assert.Equal(t, client.Disconnected, c.State())
}

func TestEndToEndHandshakeTimeout(t *testing.T) {
	srv := startServer(t, stomptest.Options{Silent: true})
	c := newClient(t, srv, func(cfg *config.StompConfig) { cfg.ConnectionTimeoutMs = 200 })

	_, err := c.Connect(context.Background(), "u1")
	assert.ErrorIs(t, err, client.ErrConnectTimeout)
	assert.Equal(t, client.Disconnected, c.State())
	require.Eventually(t, func() bool { return srv.Broker.SessionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEndToEndGracefulDisconnect(t *testing.T) {
	srv := startServer(t, stomptest.Options{})
	c := newClient(t, srv, nil)
	connect(t, c, "u1")
	require.Eventually(t, func() bool { return srv.Broker.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	c.Disconnect(false)
	require.Eventually(t, func() bool { return srv.Broker.SessionCount() == 0 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, client.Disconnected, c.State())
	assert.Equal(t, 0, srv.Broker.SessionCount())
}

func TestEndToEndLargeFrameSplitting(t *testing.T) {
	srv := startServer(t, stomptest.Options{})
	c := newClient(t, srv, func(cfg *config.StompConfig) { cfg.MaxWebSocketChunkSize = 64 })
	connect(t, c, "u1")

	body := strings.Repeat("abcdefgh", 128)
	assert.Equal(t, client.PublishSent, c.Publish("/topic/big", body, nil))
	require.Eventually(t, func() bool { return len(srv.Broker.Published()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, body, string(srv.Broker.Published()[0].Body))
}

func TestEndToEndServerHeartBeats(t *testing.T) {
	srv := startServer(t, stomptest.Options{HeartBeat: 30 * time.Millisecond})
	c := newClient(t, srv, func(cfg *config.StompConfig) {
		cfg.HeartbeatIncomingMs = 60
		cfg.HeartbeatOutgoingMs = 0
	})
	connect(t, c, "u1")

	time.Sleep(300 * time.Millisecond)
	assert.True(t, c.IsConnected())
}
