package client

import (
	"strconv"
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
	"github.com/hongjunjie0928/jango-chatRoom/src/types"
)

// Hooks are optional lifecycle callbacks. They run on the client's
// dispatcher goroutine in the order the underlying transitions happened,
// except OnBeforeSend which runs on the publishing goroutine.
type Hooks struct {
	OnConnect            func(info *types.ConnectedInfo)
	OnDisconnect         func(err error)
	OnStompError         func(f *frame.Frame)
	OnWebSocketError     func(err error)
	OnReconnect          func(attempt int)
	OnReconnectExhausted func(attempts int)
	OnMessageError       func(err error, msg *types.Message)
	OnBufferDrop         func(entry BufferEntry, err error)
	// OnError receives every classified failure.
	OnError func(err *Error)
	// OnBeforeSend may rewrite an outgoing message; returning nil keeps it unchanged.
	OnBeforeSend func(msg *OutboundMessage) *OutboundMessage
}

// OutboundMessage is a publish request after body encoding.
type OutboundMessage struct {
	Destination string
	Headers     map[string]string
	Body        []byte
}

// TimestampHeader is an OnBeforeSend hook stamping messages with the send
// time in unix milliseconds.
func TimestampHeader(msg *OutboundMessage) *OutboundMessage {
	if msg.Headers == nil {
		msg.Headers = make(map[string]string, 1)
	}
	msg.Headers["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
	return msg
}
