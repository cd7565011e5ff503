// Package transport opens STOMP sessions over WebSocket and reports their
// lifecycle through callbacks. It owns framing and heart-beats; connection
// policy (timeouts, reconnects) belongs to the caller.
package transport

import (
	"errors"
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
)

var (
	ErrNotOpen          = errors.New("transport: session not open")
	ErrClosed           = errors.New("transport: session closed")
	ErrSendBufferFull   = errors.New("transport: send buffer full")
	ErrHeartbeatTimeout = errors.New("transport: heart-beat timeout")
	ErrBrokerError      = errors.New("transport: broker sent ERROR")
)

// OpenRequest describes one connection attempt.
type OpenRequest struct {
	URL      string
	Identity string
	// Header is sent with the CONNECT frame.
	Header            frame.Header
	HeartbeatOutgoing time.Duration
	HeartbeatIncoming time.Duration
	// ChunkSize splits outgoing frames into several WebSocket messages; 0 disables.
	ChunkSize int
}

// Events receives session callbacks. OnClose is called exactly once, last.
type Events struct {
	OnConnected      func(f *frame.Frame)
	OnFrame          func(f *frame.Frame)
	OnProtocolError  func(f *frame.Frame)
	OnTransportError func(err error)
	OnClose          func(err error)
}

// Handle is an open (or opening) session.
type Handle interface {
	Send(f *frame.Frame) error
	// Close tears the session down. Graceful sends DISCONNECT and waits for
	// the receipt in the background; forced closes the socket immediately.
	Close(graceful bool) error
}

// Transport opens sessions. Open must not block on network I/O.
type Transport interface {
	Open(req OpenRequest, ev Events) (Handle, error)
}
