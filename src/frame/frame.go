// Package frame adapts the go-stomp wire codec to STOMP over WebSocket:
// frames are encoded into single buffers, split into transport-sized chunks
// and reassembled from a stream of messages before parsing.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	stompframe "github.com/go-stomp/stomp/v3/frame"
)

// Client and server commands.
const (
	Connect     = stompframe.CONNECT
	Stomp       = stompframe.STOMP
	Connected   = stompframe.CONNECTED
	Send        = stompframe.SEND
	Subscribe   = stompframe.SUBSCRIBE
	Unsubscribe = stompframe.UNSUBSCRIBE
	Ack         = stompframe.ACK
	Nack        = stompframe.NACK
	Begin       = stompframe.BEGIN
	Commit      = stompframe.COMMIT
	Abort       = stompframe.ABORT
	Disconnect  = stompframe.DISCONNECT
	Message     = stompframe.MESSAGE
	Receipt     = stompframe.RECEIPT
	Error       = stompframe.ERROR
)

// Well-known header names.
const (
	HdrAcceptVersion = "accept-version"
	HdrVersion       = "version"
	HdrHost          = "host"
	HdrHeartBeat     = "heart-beat"
	HdrDestination   = "destination"
	HdrID            = "id"
	HdrAck           = "ack"
	HdrSubscription  = "subscription"
	HdrMessageID     = "message-id"
	HdrReceipt       = "receipt"
	HdrReceiptID     = "receipt-id"
	HdrContentType   = "content-type"
	HdrContentLength = "content-length"
	HdrMessage       = "message"
	HdrSession       = "session"
	HdrServer        = "server"
)

var (
	ErrMalformed     = errors.New("frame: malformed frame")
	ErrFrameTooLarge = errors.New("frame: frame exceeds max size")
)

var commands = map[string]bool{
	Connect: true, Stomp: true, Connected: true, Send: true, Subscribe: true,
	Unsubscribe: true, Ack: true, Nack: true, Begin: true, Commit: true,
	Abort: true, Disconnect: true, Message: true, Receipt: true, Error: true,
}

// Header holds frame headers. Repeated headers on the wire keep the first value.
type Header map[string]string

// Get returns the header value or "".
func (h Header) Get(key string) string { return h[key] }

// Clone returns a copy of h, never nil.
func (h Header) Clone() Header {
	cp := make(Header, len(h))
	for k, v := range h {
		cp[k] = v
	}
	return cp
}

// Frame is one STOMP protocol unit.
type Frame struct {
	Command string
	Header  Header
	Body    []byte
}

// New builds a frame from alternating header key/value pairs.
func New(command string, kv ...string) *Frame {
	f := &Frame{Command: command, Header: make(Header, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Header[kv[i]] = kv[i+1]
	}
	return f
}

// Get returns a header value.
func (f *Frame) Get(key string) string {
	if f.Header == nil {
		return ""
	}
	return f.Header[key]
}

// Set sets a header value.
func (f *Frame) Set(key, value string) {
	if f.Header == nil {
		f.Header = make(Header)
	}
	f.Header[key] = value
}

// String renders the frame for debug logs without the body.
func (f *Frame) String() string {
	var b strings.Builder
	b.WriteString(f.Command)
	for _, k := range sortedKeys(f.Header) {
		fmt.Fprintf(&b, " %s=%s", k, f.Header[k])
	}
	fmt.Fprintf(&b, " body=%dB", len(f.Body))
	return b.String()
}

// Encode serializes the frame. Headers are written in sorted order and
// content-length is always set last when a body is present.
func (f *Frame) Encode() []byte {
	w := toWire(f)
	var buf bytes.Buffer
	buf.Grow(len(f.Command) + len(f.Body) + 64)
	// Writes into a bytes.Buffer cannot fail.
	_ = stompframe.NewWriter(&buf).Write(w)
	return buf.Bytes()
}

// Split cuts an encoded frame into chunks of at most size bytes.
// A size <= 0 returns data as a single chunk.
func Split(data []byte, size int) [][]byte {
	if size <= 0 || len(data) <= size {
		return [][]byte{data}
	}
	chunks := make([][]byte, 0, len(data)/size+1)
	for len(data) > 0 {
		n := min(size, len(data))
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

func toWire(f *Frame) *stompframe.Frame {
	w := stompframe.New(f.Command)
	for _, k := range sortedKeys(f.Header) {
		if k == HdrContentLength {
			continue
		}
		w.Header.Add(k, f.Header[k])
	}
	if len(f.Body) > 0 {
		w.Header.Add(HdrContentLength, strconv.Itoa(len(f.Body)))
		w.Body = f.Body
	}
	return w
}

func fromWire(w *stompframe.Frame) *Frame {
	f := &Frame{Command: w.Command, Header: make(Header, w.Header.Len())}
	for i := 0; i < w.Header.Len(); i++ {
		k, v := w.Header.GetAt(i)
		if _, seen := f.Header[k]; !seen {
			f.Header[k] = v
		}
	}
	if len(w.Body) > 0 {
		f.Body = w.Body
	}
	return f
}

func sortedKeys(h Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
