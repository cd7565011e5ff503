package stomptest

import (
	"sync"
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
	"github.com/hongjunjie0928/jango-chatRoom/src/types"
)

// session is one client connection to the broker.
type session struct {
	ID          string
	Identity    string
	conn        types.Conn
	broker      *Broker
	send        chan []byte
	connectedAt time.Time
	subs        map[string]string // subscription id -> destination
	heartBeat   time.Duration
	mu          sync.RWMutex
	done        chan struct{}
	closed      bool
}

func newSession(id, identity string, conn types.Conn, b *Broker) *session {
	return &session{
		ID:          id,
		Identity:    identity,
		conn:        conn,
		broker:      b,
		send:        make(chan []byte, 256),
		connectedAt: time.Now(),
		subs:        make(map[string]string),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this session.
func (s *session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dests := make([]string, 0, len(s.subs))
	for _, d := range s.subs {
		dests = append(dests, d)
	}
	return SessionInfo{
		ID:           s.ID,
		Identity:     s.Identity,
		ConnectedAt:  s.connectedAt,
		Destinations: dests,
	}
}

func (s *session) addSub(id, destination string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[id] = destination
}

func (s *session) removeSub(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.subs[id]
	delete(s.subs, id)
	return d, ok
}

// readPump decodes frames from the socket and routes them to the broker.
func (s *session) readPump() {
	defer func() {
		select {
		case s.broker.unregister <- s:
		case <-s.broker.done:
		}
		s.conn.Close()
	}()

	dec := frame.NewDecoder()
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		frames, _, err := dec.Feed(data)
		if err != nil {
			s.broker.logger.Warn().Err(err).Str("session", s.ID).Msg("malformed frame from client")
			s.write(frame.New(frame.Error, frame.HdrMessage, err.Error()))
			return
		}
		for _, f := range frames {
			select {
			case s.broker.incoming <- inbound{session: s, frame: f}:
			case <-s.broker.done:
				return
			}
		}
	}
}

// writePump writes queued frames and server heart-beats to the socket.
func (s *session) writePump() {
	defer s.conn.Close()

	var beat <-chan time.Time
	if s.heartBeat > 0 {
		t := time.NewTicker(s.heartBeat)
		defer t.Stop()
		beat = t.C
	}
	for {
		select {
		case data, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.WriteMessage(data); err != nil {
				return
			}
		case <-beat:
			if err := s.conn.WriteMessage(frame.EOL); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// write queues f without blocking; frames are dropped when the buffer is full.
func (s *session) write(f *frame.Frame) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- f.Encode():
		return true
	default:
		return false
	}
}

// Close signals the session to stop its pumps.
func (s *session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}
