package client

import (
	"errors"
	"fmt"

	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
)

// Sentinel errors - check with errors.Is().
var (
	ErrConnectTimeout     = errors.New("stomp: connect timeout")
	ErrProtocol           = errors.New("stomp: protocol error")
	ErrTransport          = errors.New("stomp: transport error")
	ErrDecode             = errors.New("stomp: message decode failed")
	ErrReconnectExhausted = errors.New("stomp: reconnect attempts exhausted")
	ErrBufferFull         = errors.New("stomp: outbound buffer full")
	ErrNotConnected       = errors.New("stomp: not connected")
	ErrDisconnected       = errors.New("stomp: disconnected by caller")
	ErrClientClosed       = errors.New("stomp: client closed")
)

// Class is the dispatcher's classification of a failure.
type Class int

const (
	TransportError Class = iota + 1
	ProtocolError
	HandshakeTimeout
	DecodeError
	ReconnectExhausted
	BufferOverflow
)

func (c Class) String() string {
	switch c {
	case TransportError:
		return "transport_error"
	case ProtocolError:
		return "protocol_error"
	case HandshakeTimeout:
		return "handshake_timeout"
	case DecodeError:
		return "decode_error"
	case ReconnectExhausted:
		return "reconnect_exhausted"
	case BufferOverflow:
		return "buffer_overflow"
	default:
		return "unknown"
	}
}

// AffectsConnection reports whether failures of this class change the
// connection state. Decode errors and buffer drops are local to one message.
func (c Class) AffectsConnection() bool {
	return c != DecodeError && c != BufferOverflow
}

// Error is a classified failure. Extract with errors.As().
type Error struct {
	Class Class
	Err   error
	// Frame is the offending ERROR frame for protocol errors.
	Frame *frame.Frame
}

func (e *Error) Error() string { return e.Class.String() + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func newError(class Class, sentinel error, detail any) *Error {
	var err error
	switch d := detail.(type) {
	case nil:
		err = sentinel
	case error:
		err = fmt.Errorf("%w: %w", sentinel, d)
	default:
		err = fmt.Errorf("%w: %v", sentinel, d)
	}
	return &Error{Class: class, Err: err}
}

func protocolError(f *frame.Frame) *Error {
	msg := f.Get(frame.HdrMessage)
	if msg == "" {
		msg = "broker error"
	}
	e := newError(ProtocolError, ErrProtocol, msg)
	e.Frame = f
	return e
}

// ClassOf returns the class of a classified error.
func ClassOf(err error) (Class, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}
	switch {
	case errors.Is(err, ErrConnectTimeout):
		return HandshakeTimeout, true
	case errors.Is(err, ErrProtocol):
		return ProtocolError, true
	case errors.Is(err, ErrTransport):
		return TransportError, true
	case errors.Is(err, ErrDecode):
		return DecodeError, true
	case errors.Is(err, ErrReconnectExhausted):
		return ReconnectExhausted, true
	case errors.Is(err, ErrBufferFull):
		return BufferOverflow, true
	}
	return 0, false
}
