package frame

import (
	"bytes"
	"fmt"
	"strconv"

	stompframe "github.com/go-stomp/stomp/v3/frame"
)

// DefaultMaxFrameSize bounds how much partial data a Decoder will hold.
const DefaultMaxFrameSize = 16 << 20

// Decoder reassembles frames from a stream of transport messages.
// A frame may span several messages and one message may carry several frames.
type Decoder struct {
	MaxFrameSize int

	buf []byte
}

// NewDecoder returns a decoder with the default size limit.
func NewDecoder() *Decoder {
	return &Decoder{MaxFrameSize: DefaultMaxFrameSize}
}

// Feed appends data and returns every complete frame plus the number of
// heart-beat EOLs consumed. Any error is fatal for the stream.
func (d *Decoder) Feed(data []byte) ([]*Frame, int, error) {
	d.buf = append(d.buf, data...)
	limit := d.maxSize()
	var (
		out   []*Frame
		beats int
	)
	for {
		i := 0
		for i < len(d.buf) {
			if d.buf[i] == '\n' {
				i++
				beats++
				continue
			}
			if d.buf[i] == '\r' && i+1 < len(d.buf) && d.buf[i+1] == '\n' {
				i += 2
				beats++
				continue
			}
			break
		}
		d.buf = d.buf[i:]
		if len(d.buf) == 0 {
			d.buf = nil
			return out, beats, nil
		}

		f, n, err := parse(d.buf, limit)
		if err != nil {
			d.buf = nil
			return out, beats, err
		}
		if n == 0 {
			if len(d.buf) > limit {
				d.buf = nil
				return out, beats, fmt.Errorf("%w: %d bytes buffered", ErrFrameTooLarge, limit)
			}
			return out, beats, nil
		}
		out = append(out, f)
		d.buf = d.buf[n:]
	}
}

// Buffered returns the number of bytes held for an incomplete frame.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Reset drops any partial frame.
func (d *Decoder) Reset() { d.buf = nil }

func (d *Decoder) maxSize() int {
	if d.MaxFrameSize <= 0 {
		return DefaultMaxFrameSize
	}
	return d.MaxFrameSize
}

// Decode parses exactly one complete frame.
func Decode(data []byte) (*Frame, error) {
	f, n, err := parse(data, DefaultMaxFrameSize)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: incomplete frame", ErrMalformed)
	}
	return f, nil
}

// parse reads one frame from buf. It returns n == 0 when more data is needed.
func parse(buf []byte, limit int) (*Frame, int, error) {
	n, err := boundary(buf, limit)
	if err != nil || n == 0 {
		return nil, 0, err
	}
	w, err := stompframe.NewReader(bytes.NewReader(buf[:n])).Read()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w == nil {
		return nil, 0, fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	return fromWire(w), n, nil
}

// boundary returns the length of the first complete frame in buf including
// its NUL terminator, or 0 when the frame is still incomplete. The declared
// content-length is checked against limit before any body is read.
func boundary(buf []byte, limit int) (int, error) {
	pos := 0
	line, ok := nextLine(buf, &pos)
	if !ok {
		return 0, nil
	}
	if !commands[string(line)] {
		return 0, fmt.Errorf("%w: unknown command %q", ErrMalformed, line)
	}

	length := -1
	for {
		line, ok = nextLine(buf, &pos)
		if !ok {
			return 0, nil
		}
		if len(line) == 0 {
			break
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return 0, fmt.Errorf("%w: bad header line %q", ErrMalformed, line)
		}
		if length >= 0 || string(line[:colon]) != HdrContentLength {
			continue
		}
		cl := string(line[colon+1:])
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: bad content-length %q", ErrMalformed, cl)
		}
		if n > limit-pos {
			return 0, fmt.Errorf("%w: content-length %d", ErrFrameTooLarge, n)
		}
		length = n
	}

	if length >= 0 {
		if length >= len(buf)-pos {
			return 0, nil
		}
		if buf[pos+length] != 0 {
			return 0, fmt.Errorf("%w: missing NUL after body", ErrMalformed)
		}
		return pos + length + 1, nil
	}

	end := bytes.IndexByte(buf[pos:], 0)
	if end < 0 {
		return 0, nil
	}
	return pos + end + 1, nil
}

func nextLine(buf []byte, pos *int) ([]byte, bool) {
	idx := bytes.IndexByte(buf[*pos:], '\n')
	if idx < 0 {
		return nil, false
	}
	line := buf[*pos : *pos+idx]
	*pos += idx + 1
	return bytes.TrimSuffix(line, []byte{'\r'}), true
}
