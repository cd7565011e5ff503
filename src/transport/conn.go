package transport

import (
	"time"

	"github.com/fasthttp/websocket"
	"github.com/hongjunjie0928/jango-chatRoom/src/types"
)

// wsConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type wsConn struct {
	conn *websocket.Conn
}

var _ types.Conn = (*wsConn)(nil)

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsConn) WriteMessage(data []byte) error {
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// CloseGracefully sends a close control frame before closing the socket.
func (w *wsConn) CloseGracefully() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return w.conn.Close()
}

func (w *wsConn) Close() error { return w.conn.Close() }
