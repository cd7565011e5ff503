package client_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/src/client"
	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
	"github.com/hongjunjie0928/jango-chatRoom/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(*types.Message) {}

func destinations(frames []*frame.Frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Get(frame.HdrDestination))
	}
	return out
}

func TestSubscribeWhileDisconnectedReplaysInOrder(t *testing.T) {
	h := newHarness(t, nil)
	for _, d := range []string{"/topic/a", "/topic/b", "/queue/c"} {
		h.c.Subscribe(d, noop)
	}
	assert.Equal(t, []string{"/topic/a", "/topic/b", "/queue/c"}, h.c.PendingSubscriptions())
	assert.Empty(t, h.c.Subscriptions())

	s := h.connect(t, "u1")

	subs := s.frames(frame.Subscribe)
	require.Len(t, subs, 3)
	assert.Equal(t, []string{"/topic/a", "/topic/b", "/queue/c"}, destinations(subs))
	ids := map[string]bool{}
	for _, f := range subs {
		assert.Equal(t, "auto", f.Get(frame.HdrAck))
		ids[f.Get(frame.HdrID)] = true
	}
	assert.Len(t, ids, 3)
	assert.Empty(t, h.c.PendingSubscriptions())

	live := h.c.Subscriptions()
	require.Len(t, live, 3)
	assert.Equal(t, subs[0].Get(frame.HdrID), live[0].ID)
}

func TestSubscribeReplayNotDuplicatedOnConnectRetry(t *testing.T) {
	h := newHarness(t, nil)
	h.c.Subscribe("/q", noop)
	s := h.connect(t, "u1")

	_, err := h.c.ConnectAsync("u1").Result()
	require.NoError(t, err)
	assert.Len(t, s.frames(frame.Subscribe), 1)
	assert.Len(t, h.c.Subscriptions(), 1)
}

func TestSubscribeWhileConnectedIsImmediate(t *testing.T) {
	h := newHarness(t, nil)
	s := h.connect(t, "u1")

	h.c.Subscribe("/topic/live", noop)
	subs := s.frames(frame.Subscribe)
	require.Len(t, subs, 1)
	assert.Equal(t, "/topic/live", subs[0].Get(frame.HdrDestination))
	assert.Empty(t, h.c.PendingSubscriptions())
}

func TestSubscribeSendFailureKeepsIntentPending(t *testing.T) {
	h := newHarness(t, nil)
	s := h.connect(t, "u1")
	s.setSendErr(errors.New("send buffer full"))

	h.c.Subscribe("/q", noop)
	assert.Empty(t, h.c.Subscriptions())
	assert.Equal(t, []string{"/q"}, h.c.PendingSubscriptions())
}

func TestUnsubscribeThenSubscribeKeepsOneLive(t *testing.T) {
	h := newHarness(t, nil)
	s := h.connect(t, "u1")

	h.c.Subscribe("/d", noop)
	h.c.Unsubscribe("/d")
	h.c.Subscribe("/d", noop)

	live := h.c.Subscriptions()
	require.Len(t, live, 1)
	subs := s.frames(frame.Subscribe)
	unsubs := s.frames(frame.Unsubscribe)
	require.Len(t, subs, 2)
	require.Len(t, unsubs, 1)
	assert.Equal(t, subs[0].Get(frame.HdrID), unsubs[0].Get(frame.HdrID))
	assert.Equal(t, subs[1].Get(frame.HdrID), live[0].ID)
}

func TestUnsubscribeRemovesFirstMatchOnly(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t, "u1")
	h.c.Subscribe("/d", noop)
	h.c.Subscribe("/d", noop)
	first := h.c.Subscriptions()[0].ID

	h.c.Unsubscribe("/d")
	live := h.c.Subscriptions()
	require.Len(t, live, 1)
	assert.NotEqual(t, first, live[0].ID)
}

func TestUnsubscribePendingIntent(t *testing.T) {
	h := newHarness(t, nil)
	h.c.Subscribe("/a", noop)
	h.c.Subscribe("/b", noop)
	h.c.Unsubscribe("/a")
	h.c.Unsubscribe("/missing")
	assert.Equal(t, []string{"/b"}, h.c.PendingSubscriptions())

	s := h.connect(t, "u1")
	assert.Equal(t, []string{"/b"}, destinations(s.frames(frame.Subscribe)))
}

func TestSubscriptionsRestoredAfterReconnect(t *testing.T) {
	h := newHarness(t, nil)
	h.c.Subscribe("/q", noop)
	s := h.connect(t, "u1")
	h.c.Subscribe("/later", noop)

	s.drop(errSocket)
	assert.Empty(t, h.c.Subscriptions())
	assert.Equal(t, []string{"/q", "/later"}, h.c.PendingSubscriptions())

	h.c.Subscribe("/offline", noop)
	require.Eventually(t, func() bool { return h.tr.count() == 2 }, time.Second, 5*time.Millisecond)
	s2 := h.tr.last()
	s2.connected()
	require.Eventually(t, h.c.IsConnected, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"/q", "/later", "/offline"}, destinations(s2.frames(frame.Subscribe)))
	assert.Len(t, h.c.Subscriptions(), 3)
	assert.Empty(t, h.c.PendingSubscriptions())
}

type collector struct {
	mu   sync.Mutex
	msgs []*types.Message
}

func (c *collector) handle(m *types.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) all() []*types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Message(nil), c.msgs...)
}

func TestMessageDeliveryDecodesJSON(t *testing.T) {
	h := newHarness(t, nil)
	s := h.connect(t, "u1")
	got := &collector{}
	h.c.Subscribe("/topic/a", got.handle)
	id := h.c.Subscriptions()[0].ID

	s.deliver(id, "/topic/a", "application/json", `{"x":1}`)

	require.Eventually(t, func() bool { return len(got.all()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	msgs := got.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]any{"x": float64(1)}, msgs[0].Payload)
	assert.Equal(t, "/topic/a", msgs[0].Destination)
	assert.Equal(t, id, msgs[0].SubscriptionID)
	assert.Equal(t, "m-1", msgs[0].MessageID)

	var typed struct{ X int }
	require.NoError(t, msgs[0].Decode(&typed))
	assert.Equal(t, 1, typed.X)
}

func TestMessageDeliveryPlainText(t *testing.T) {
	h := newHarness(t, nil)
	s := h.connect(t, "u1")
	got := &collector{}
	h.c.Subscribe("/topic/a", got.handle)

	s.deliver(h.c.Subscriptions()[0].ID, "/topic/a", "text/plain", "hello")
	require.Eventually(t, func() bool { return len(got.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "hello", got.all()[0].Payload)
}

func TestDecodeErrorIsIsolated(t *testing.T) {
	h := newHarness(t, nil)
	s := h.connect(t, "u1")
	got := &collector{}
	h.c.Subscribe("/topic/a", got.handle)
	id := h.c.Subscriptions()[0].ID

	s.deliver(id, "/topic/a", "", `{not json`)
	h.waitFor(t, "message_error", 1)
	assert.Empty(t, got.all())
	assert.True(t, h.c.IsConnected())
	assert.Equal(t, []client.Class{client.DecodeError}, h.rec.classes())

	s.deliver(id, "/topic/a", "", `[1,2]`)
	require.Eventually(t, func() bool { return len(got.all()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestHandlerPanicReportedAsDecodeError(t *testing.T) {
	h := newHarness(t, nil)
	s := h.connect(t, "u1")
	h.c.Subscribe("/boom", func(*types.Message) { panic("handler bug") })

	s.deliver(h.c.Subscriptions()[0].ID, "/boom", "", `{}`)
	h.waitFor(t, "message_error", 1)
	assert.True(t, h.c.IsConnected())
	assert.Equal(t, []client.Class{client.DecodeError}, h.rec.classes())
}

func TestMessageForUnknownSubscriptionDropped(t *testing.T) {
	h := newHarness(t, nil)
	s := h.connect(t, "u1")
	s.deliver("sub-unknown", "/x", "", `{}`)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, h.rec.count("message_error"))
}
