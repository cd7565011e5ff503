package stomptest

import (
	"net"
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/hongjunjie0928/jango-chatRoom/src/transport"
	"github.com/hongjunjie0928/jango-chatRoom/src/types"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Path is where the broker accepts WebSocket upgrades.
const Path = "/ws/stomp"

// Server hosts a Broker on a fasthttp server.
type Server struct {
	Broker *Broker

	upgrader websocket.FastHTTPUpgrader
	srv      *fasthttp.Server
	ln       net.Listener
	logger   zerolog.Logger
}

// NewServer creates a broker server. Call Start to listen.
func NewServer(logger zerolog.Logger, opts Options) *Server {
	s := &Server{
		Broker: NewBroker(logger, opts),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    transport.Subprotocols,
			CheckOrigin:     func(*fasthttp.RequestCtx) bool { return true },
		},
		logger: logger.With().Str("component", "stomp-server").Logger(),
	}
	s.srv = &fasthttp.Server{Handler: s.Handler(), Name: "stomptest"}
	return s
}

// Start listens on addr ("127.0.0.1:0" picks a free port) and serves in
// the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go s.Broker.Run()
	go func() {
		if err := s.srv.Serve(ln); err != nil {
			s.logger.Error().Err(err).Msg("broker server stopped")
		}
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("stomp broker listening")
	return nil
}

// URL returns the WebSocket endpoint of a started server.
func (s *Server) URL() string {
	return "ws://" + s.ln.Addr().String() + Path
}

// Close drops every session and stops the server.
func (s *Server) Close() error {
	s.Broker.DropAll()
	s.Broker.Stop()
	return s.srv.Shutdown()
}

// Handler returns the raw fasthttp handler performing WebSocket upgrades.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != Path {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		id := uuid.New().String()
		identity := string(ctx.QueryArgs().Peek("uid"))
		b := s.Broker

		err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			sess := newSession(id, identity, &fasthttpConn{conn}, b)
			sess.heartBeat = b.opts.HeartBeat
			select {
			case b.register <- sess:
			case <-b.done:
				return
			}
			go sess.writePump()
			sess.readPump()
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type fasthttpConn struct {
	conn *websocket.Conn
}

var _ types.Conn = (*fasthttpConn)(nil)

func (f *fasthttpConn) ReadMessage() ([]byte, error) {
	_, data, err := f.conn.ReadMessage()
	return data, err
}

func (f *fasthttpConn) WriteMessage(data []byte) error {
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

func (f *fasthttpConn) Close() error { return f.conn.Close() }
