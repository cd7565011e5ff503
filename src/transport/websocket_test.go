package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
	"github.com/hongjunjie0928/jango-chatRoom/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn implements types.Conn without a real WebSocket.
type mockConn struct {
	mu       sync.Mutex
	written  [][]byte
	readCh   chan []byte
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:   make(chan []byte, 16),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-m.readCh:
		return data, nil
	case <-m.closedCh:
		return nil, errors.New("use of closed connection")
	}
}

func (m *mockConn) WriteMessage(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("write on closed connection")
	}
	m.written = append(m.written, append([]byte(nil), data...))
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) getWritten() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([][]byte, len(m.written))
	copy(cp, m.written)
	return cp
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// recorder collects session callbacks.
type recorder struct {
	mu         sync.Mutex
	connected  int
	frames     []*frame.Frame
	protoErrs  []*frame.Frame
	transErrs  []error
	closes     int
	closeErr   error
	closedOnce chan struct{}
}

func newRecorder() *recorder {
	return &recorder{closedOnce: make(chan struct{})}
}

func (r *recorder) events() Events {
	return Events{
		OnConnected: func(*frame.Frame) {
			r.mu.Lock()
			r.connected++
			r.mu.Unlock()
		},
		OnFrame: func(f *frame.Frame) {
			r.mu.Lock()
			r.frames = append(r.frames, f)
			r.mu.Unlock()
		},
		OnProtocolError: func(f *frame.Frame) {
			r.mu.Lock()
			r.protoErrs = append(r.protoErrs, f)
			r.mu.Unlock()
		},
		OnTransportError: func(err error) {
			r.mu.Lock()
			r.transErrs = append(r.transErrs, err)
			r.mu.Unlock()
		},
		OnClose: func(err error) {
			r.mu.Lock()
			r.closes++
			r.closeErr = err
			r.mu.Unlock()
			close(r.closedOnce)
		},
	}
}

func (r *recorder) snapshot() recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorder{
		connected: r.connected,
		frames:    append([]*frame.Frame(nil), r.frames...),
		protoErrs: append([]*frame.Frame(nil), r.protoErrs...),
		transErrs: append([]error(nil), r.transErrs...),
		closes:    r.closes,
		closeErr:  r.closeErr,
	}
}

func newTestTransport(conn *mockConn, gotURL *string) *WebSocket {
	var mu sync.Mutex
	return NewWebSocketWithDialer(func(_ context.Context, rawURL string, _ http.Header) (types.Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		if gotURL != nil {
			*gotURL = rawURL
		}
		return conn, nil
	}, zerolog.Nop())
}

func decodeWritten(t *testing.T, chunks [][]byte) []*frame.Frame {
	t.Helper()
	dec := frame.NewDecoder()
	var out []*frame.Frame
	for _, c := range chunks {
		frames, _, err := dec.Feed(c)
		require.NoError(t, err)
		out = append(out, frames...)
	}
	return out
}

func openSession(t *testing.T, conn *mockConn, rec *recorder) Handle {
	t.Helper()
	tr := newTestTransport(conn, nil)
	h, err := tr.Open(OpenRequest{
		URL:      "ws://localhost:8000/ws/stomp",
		Identity: "u1",
		Header:   frame.Header{"user-id": "u1"},
	}, rec.events())
	require.NoError(t, err)
	conn.readCh <- frame.New(frame.Connected, frame.HdrVersion, "1.2").Encode()
	require.Eventually(t, func() bool { return rec.snapshot().connected == 1 }, time.Second, 5*time.Millisecond)
	return h
}

func TestBrokerURL(t *testing.T) {
	u, err := BrokerURL("ws://localhost:8000/ws/stomp?lang=zh", "u 1")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/ws/stomp?lang=zh&uid=u+1", u)

	u, err = BrokerURL("wss://example.com/stomp", "")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/stomp", u)

	_, err = BrokerURL("http://example.com", "u1")
	assert.Error(t, err)
}

func TestOpenSendsConnectFrame(t *testing.T) {
	conn := newMockConn()
	var gotURL string
	tr := newTestTransport(conn, &gotURL)

	_, err := tr.Open(OpenRequest{
		URL:               "ws://localhost:8000/ws/stomp",
		Identity:          "u1",
		Header:            frame.Header{"user-id": "u1"},
		HeartbeatOutgoing: 4 * time.Second,
		HeartbeatIncoming: 4 * time.Second,
	}, newRecorder().events())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(conn.getWritten()) == 1 }, time.Second, 5*time.Millisecond)
	frames := decodeWritten(t, conn.getWritten())
	require.Len(t, frames, 1)
	assert.Equal(t, frame.Connect, frames[0].Command)
	assert.Equal(t, "u1", frames[0].Get("user-id"))
	assert.Equal(t, "1.2", frames[0].Get(frame.HdrAcceptVersion))
	assert.Equal(t, "4000,4000", frames[0].Get(frame.HdrHeartBeat))
	assert.True(t, strings.HasSuffix(gotURL, "uid=u1"))
}

func TestConnectedThenMessage(t *testing.T) {
	conn := newMockConn()
	rec := newRecorder()
	openSession(t, conn, rec)

	msg := frame.New(frame.Message, frame.HdrSubscription, "sub-1", frame.HdrDestination, "/topic/a")
	msg.Body = []byte(`{"x":1}`)
	data := msg.Encode()
	// Deliver split across two WebSocket messages.
	conn.readCh <- data[:10]
	conn.readCh <- data[10:]

	require.Eventually(t, func() bool { return len(rec.snapshot().frames) == 1 }, time.Second, 5*time.Millisecond)
	got := rec.snapshot().frames[0]
	assert.Equal(t, "/topic/a", got.Get(frame.HdrDestination))
	assert.Equal(t, `{"x":1}`, string(got.Body))
}

func TestSendBeforeConnected(t *testing.T) {
	conn := newMockConn()
	tr := newTestTransport(conn, nil)
	h, err := tr.Open(OpenRequest{URL: "ws://localhost/stomp"}, newRecorder().events())
	require.NoError(t, err)
	assert.ErrorIs(t, h.Send(frame.New(frame.Send)), ErrNotOpen)
}

func TestSendSplitsLargeFrames(t *testing.T) {
	conn := newMockConn()
	rec := newRecorder()
	tr := newTestTransport(conn, nil)
	h, err := tr.Open(OpenRequest{URL: "ws://localhost/stomp", ChunkSize: 32}, rec.events())
	require.NoError(t, err)
	conn.readCh <- frame.New(frame.Connected).Encode()
	require.Eventually(t, func() bool { return rec.snapshot().connected == 1 }, time.Second, 5*time.Millisecond)

	f := frame.New(frame.Send, frame.HdrDestination, "/app/chat")
	f.Body = []byte(strings.Repeat("a", 100))
	require.NoError(t, h.Send(f))

	var frames []*frame.Frame
	require.Eventually(t, func() bool {
		frames = decodeWritten(t, conn.getWritten())
		return len(frames) == 2 // CONNECT + SEND
	}, time.Second, 5*time.Millisecond)
	for _, c := range conn.getWritten() {
		assert.LessOrEqual(t, len(c), 32)
	}
	assert.Equal(t, f.Body, frames[1].Body)
}

func TestErrorFrameReportsProtocolError(t *testing.T) {
	conn := newMockConn()
	rec := newRecorder()
	tr := newTestTransport(conn, nil)
	_, err := tr.Open(OpenRequest{URL: "ws://localhost/stomp"}, rec.events())
	require.NoError(t, err)

	conn.readCh <- frame.New(frame.Error, frame.HdrMessage, "bad credentials").Encode()

	select {
	case <-rec.closedOnce:
	case <-time.After(time.Second):
		t.Fatal("session did not close")
	}
	snap := rec.snapshot()
	require.Len(t, snap.protoErrs, 1)
	assert.Equal(t, "bad credentials", snap.protoErrs[0].Get(frame.HdrMessage))
	assert.Empty(t, snap.transErrs)
	assert.ErrorIs(t, snap.closeErr, ErrBrokerError)
	assert.True(t, conn.isClosed())
}

func TestMalformedFrameReportsProtocolError(t *testing.T) {
	conn := newMockConn()
	rec := newRecorder()
	openSession(t, conn, rec)

	conn.readCh <- []byte("BOGUS\n\n\x00")

	select {
	case <-rec.closedOnce:
	case <-time.After(time.Second):
		t.Fatal("session did not close")
	}
	snap := rec.snapshot()
	require.Len(t, snap.protoErrs, 1)
	assert.ErrorIs(t, snap.closeErr, frame.ErrMalformed)
}

func TestDialErrorReportsTransportError(t *testing.T) {
	rec := newRecorder()
	tr := NewWebSocketWithDialer(func(context.Context, string, http.Header) (types.Conn, error) {
		return nil, errors.New("connection refused")
	}, zerolog.Nop())
	_, err := tr.Open(OpenRequest{URL: "ws://localhost/stomp"}, rec.events())
	require.NoError(t, err)

	select {
	case <-rec.closedOnce:
	case <-time.After(time.Second):
		t.Fatal("session did not close")
	}
	snap := rec.snapshot()
	require.Len(t, snap.transErrs, 1)
	assert.Contains(t, snap.transErrs[0].Error(), "connection refused")
	assert.Equal(t, 1, snap.closes)
}

func TestSocketLossReportsTransportError(t *testing.T) {
	conn := newMockConn()
	rec := newRecorder()
	openSession(t, conn, rec)

	conn.Close()

	select {
	case <-rec.closedOnce:
	case <-time.After(time.Second):
		t.Fatal("session did not close")
	}
	snap := rec.snapshot()
	assert.Len(t, snap.transErrs, 1)
	assert.Equal(t, 1, snap.closes)
}

func TestForcedCloseIsSilent(t *testing.T) {
	conn := newMockConn()
	rec := newRecorder()
	h := openSession(t, conn, rec)

	require.NoError(t, h.Close(false))

	select {
	case <-rec.closedOnce:
	case <-time.After(time.Second):
		t.Fatal("session did not close")
	}
	snap := rec.snapshot()
	assert.Empty(t, snap.transErrs)
	assert.Empty(t, snap.protoErrs)
	assert.NoError(t, snap.closeErr)
	assert.True(t, conn.isClosed())
	assert.ErrorIs(t, h.Send(frame.New(frame.Send)), ErrClosed)
}

func TestGracefulCloseSendsDisconnect(t *testing.T) {
	conn := newMockConn()
	rec := newRecorder()
	h := openSession(t, conn, rec)

	require.NoError(t, h.Close(true))

	var disconnect *frame.Frame
	require.Eventually(t, func() bool {
		for _, f := range decodeWritten(t, conn.getWritten()) {
			if f.Command == frame.Disconnect {
				disconnect = f
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	receipt := disconnect.Get(frame.HdrReceipt)
	require.NotEmpty(t, receipt)

	conn.readCh <- frame.New(frame.Receipt, frame.HdrReceiptID, receipt).Encode()

	select {
	case <-rec.closedOnce:
	case <-time.After(time.Second):
		t.Fatal("session did not close after receipt")
	}
	assert.True(t, conn.isClosed())
	assert.Empty(t, rec.snapshot().frames) // receipt consumed internally
}

func TestHeartbeatTimeout(t *testing.T) {
	conn := newMockConn()
	rec := newRecorder()
	tr := newTestTransport(conn, nil)
	_, err := tr.Open(OpenRequest{
		URL:               "ws://localhost/stomp",
		HeartbeatIncoming: 20 * time.Millisecond,
	}, rec.events())
	require.NoError(t, err)
	conn.readCh <- frame.New(frame.Connected, frame.HdrHeartBeat, "20,0").Encode()

	select {
	case <-rec.closedOnce:
	case <-time.After(2 * time.Second):
		t.Fatal("heart-beat watchdog did not fire")
	}
	snap := rec.snapshot()
	require.Len(t, snap.transErrs, 1)
	assert.ErrorIs(t, snap.transErrs[0], ErrHeartbeatTimeout)
}
