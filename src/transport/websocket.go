package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
	"github.com/hongjunjie0928/jango-chatRoom/src/types"
	"github.com/rs/zerolog"
)

// Subprotocols advertised during the WebSocket handshake.
var Subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

const (
	sendBufferSize   = 256
	receiptTimeout   = 2 * time.Second
	heartbeatGrace   = 2
	handshakeTimeout = 30 * time.Second
)

// DialFunc opens the underlying message connection.
type DialFunc func(ctx context.Context, rawURL string, header http.Header) (types.Conn, error)

// WebSocket opens STOMP sessions over WebSocket connections.
type WebSocket struct {
	dial   DialFunc
	logger zerolog.Logger
}

// NewWebSocket creates a transport using the fasthttp/websocket dialer.
func NewWebSocket(logger zerolog.Logger) *WebSocket {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     Subprotocols,
	}
	return NewWebSocketWithDialer(func(ctx context.Context, rawURL string, header http.Header) (types.Conn, error) {
		conn, resp, err := dialer.DialContext(ctx, rawURL, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return nil, err
		}
		return &wsConn{conn: conn}, nil
	}, logger)
}

// NewWebSocketWithDialer creates a transport over a custom dial function.
func NewWebSocketWithDialer(dial DialFunc, logger zerolog.Logger) *WebSocket {
	return &WebSocket{
		dial:   dial,
		logger: logger.With().Str("component", "stomp-transport").Logger(),
	}
}

// Open validates the request and starts the session in the background.
func (w *WebSocket) Open(req OpenRequest, ev Events) (Handle, error) {
	target, err := BrokerURL(req.URL, req.Identity)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		req:     req,
		ev:      ev,
		url:     target,
		dial:    w.dial,
		logger:  w.logger.With().Str("identity", req.Identity).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		send:    make(chan [][]byte, sendBufferSize),
		receipt: make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// BrokerURL attaches the identity as the uid query parameter.
func BrokerURL(raw, identity string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("transport: bad broker url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("transport: bad broker url scheme %q", u.Scheme)
	}
	if identity != "" {
		q := u.Query()
		q.Set("uid", identity)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type session struct {
	req    OpenRequest
	ev     Events
	url    string
	dial   DialFunc
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	conn      types.Conn
	send      chan [][]byte
	open      atomic.Bool
	closing   atomic.Bool
	closeOnce sync.Once
	endOnce   sync.Once

	lastRead     atomic.Int64
	receiptID    string
	receipt      chan struct{}
	receiptOnce  sync.Once
	sendInterval time.Duration
	recvInterval time.Duration
}

func (s *session) run() {
	conn, err := s.dial(s.ctx, s.url, nil)
	if err != nil {
		if s.closing.Load() {
			s.end(nil)
			return
		}
		s.fail(fmt.Errorf("dial %s: %w", s.url, err))
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	if s.closing.Load() {
		conn.Close()
		s.end(nil)
		return
	}

	go s.writePump(conn)

	connect := &frame.Frame{Command: frame.Connect, Header: s.req.Header.Clone()}
	connect.Set(frame.HdrHeartBeat, frame.FormatHeartBeat(s.req.HeartbeatOutgoing, s.req.HeartbeatIncoming))
	if connect.Get(frame.HdrAcceptVersion) == "" {
		connect.Set(frame.HdrAcceptVersion, "1.2")
	}
	if err := s.enqueue(connect); err != nil {
		s.fail(err)
		return
	}
	s.readPump(conn)
}

// readPump decodes frames until the socket fails or is closed.
func (s *session) readPump(conn types.Conn) {
	dec := frame.NewDecoder()
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if s.closing.Load() {
				s.end(nil)
				return
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				s.closing.Store(true)
				s.end(err)
				s.shutdown(false)
				return
			}
			s.fail(err)
			return
		}
		s.lastRead.Store(time.Now().UnixNano())

		frames, _, err := dec.Feed(data)
		for _, f := range frames {
			s.logger.Debug().Str("frame", f.String()).Msg("<<< received")
			s.dispatch(f)
		}
		if err != nil {
			if s.ev.OnProtocolError != nil && !s.closing.Load() {
				s.ev.OnProtocolError(frame.New(frame.Error, frame.HdrMessage, err.Error()))
			}
			s.closing.Store(true)
			s.end(err)
			s.shutdown(false)
			return
		}
	}
}

func (s *session) dispatch(f *frame.Frame) {
	switch f.Command {
	case frame.Connected:
		s.onConnected(f)
	case frame.Error:
		if s.ev.OnProtocolError != nil && !s.closing.Load() {
			s.ev.OnProtocolError(f)
		}
		// The broker closes the connection after ERROR.
		s.closing.Store(true)
		s.end(fmt.Errorf("%w: %s", ErrBrokerError, f.Get(frame.HdrMessage)))
		s.shutdown(false)
	case frame.Receipt:
		if id := f.Get(frame.HdrReceiptID); id != "" && id == s.disconnectReceipt() {
			s.receiptOnce.Do(func() { close(s.receipt) })
			return
		}
		if s.ev.OnFrame != nil {
			s.ev.OnFrame(f)
		}
	default:
		if s.ev.OnFrame != nil {
			s.ev.OnFrame(f)
		}
	}
}

func (s *session) onConnected(f *frame.Frame) {
	sx, sy, err := frame.ParseHeartBeat(f.Get(frame.HdrHeartBeat))
	if err != nil {
		s.logger.Warn().Err(err).Msg("ignoring server heart-beat header")
	}
	s.sendInterval, s.recvInterval = frame.NegotiateHeartBeat(
		s.req.HeartbeatOutgoing, s.req.HeartbeatIncoming, sx, sy)
	s.open.Store(true)
	if s.sendInterval > 0 || s.recvInterval > 0 {
		go s.heartbeat(s.sendInterval, s.recvInterval)
	}
	s.logger.Debug().
		Dur("send_heartbeat", s.sendInterval).
		Dur("recv_heartbeat", s.recvInterval).
		Msg("session established")
	if s.ev.OnConnected != nil {
		s.ev.OnConnected(f)
	}
}

// writePump writes queued chunks; chunks of one frame are written back to back.
func (s *session) writePump(conn types.Conn) {
	for {
		select {
		case chunks := <-s.send:
			for _, c := range chunks {
				if err := conn.WriteMessage(c); err != nil {
					if !s.closing.Load() {
						s.fail(fmt.Errorf("write: %w", err))
					}
					return
				}
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *session) heartbeat(send, recv time.Duration) {
	var sendC, recvC <-chan time.Time
	if send > 0 {
		t := time.NewTicker(send)
		defer t.Stop()
		sendC = t.C
	}
	if recv > 0 {
		t := time.NewTicker(recv)
		defer t.Stop()
		recvC = t.C
	}
	for {
		select {
		case <-sendC:
			select {
			case s.send <- [][]byte{frame.EOL}:
			default:
			}
		case <-recvC:
			last := time.Unix(0, s.lastRead.Load())
			if time.Since(last) > heartbeatGrace*recv {
				s.fail(ErrHeartbeatTimeout)
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// Send encodes the frame and queues it for the writer.
func (s *session) Send(f *frame.Frame) error {
	if s.closing.Load() {
		return ErrClosed
	}
	if !s.open.Load() {
		return ErrNotOpen
	}
	s.logger.Debug().Str("frame", f.String()).Msg(">>> sending")
	return s.enqueue(f)
}

func (s *session) enqueue(f *frame.Frame) error {
	chunks := frame.Split(f.Encode(), s.req.ChunkSize)
	select {
	case s.send <- chunks:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

func (s *session) Close(graceful bool) error {
	s.closeOnce.Do(func() {
		wasOpen := s.open.Load()
		s.closing.Store(true)
		if graceful && wasOpen {
			go s.disconnect()
			return
		}
		s.shutdown(false)
	})
	return nil
}

// disconnect sends DISCONNECT and waits for its receipt before closing.
func (s *session) disconnect() {
	id := "disconnect-" + uuid.NewString()
	s.mu.Lock()
	s.receiptID = id
	s.mu.Unlock()

	if err := s.enqueue(frame.New(frame.Disconnect, frame.HdrReceipt, id)); err == nil {
		timer := time.NewTimer(receiptTimeout)
		select {
		case <-s.receipt:
		case <-timer.C:
			s.logger.Debug().Msg("no receipt for DISCONNECT, closing anyway")
		}
		timer.Stop()
	}
	s.shutdown(true)
}

func (s *session) disconnectReceipt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receiptID
}

func (s *session) shutdown(graceful bool) {
	s.open.Store(false)
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	s.cancel()
	if conn == nil {
		return
	}
	if gc, ok := conn.(interface{ CloseGracefully() error }); ok && graceful {
		gc.CloseGracefully()
		return
	}
	conn.Close()
}

// fail reports a transport error, closes the socket and ends the session.
func (s *session) fail(err error) {
	if s.closing.CompareAndSwap(false, true) && s.ev.OnTransportError != nil {
		s.ev.OnTransportError(err)
	}
	s.end(err)
	s.shutdown(false)
}

func (s *session) end(err error) {
	s.endOnce.Do(func() {
		s.open.Store(false)
		s.cancel()
		if s.ev.OnClose != nil {
			s.ev.OnClose(err)
		}
	})
}
