package stomptest

import "github.com/hongjunjie0928/jango-chatRoom/src/frame"

// OnConnection registers a callback for completed handshakes.
func (b *Broker) OnConnection(cb func(SessionInfo)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnect = append(b.onConnect, cb)
}

// OnDisconnection registers a callback for closed sessions.
func (b *Broker) OnDisconnection(cb func(SessionInfo)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDisconn = append(b.onDisconn, cb)
}

// Publish pushes a message from the broker side to every subscriber of
// destination and returns how many subscriptions received it.
func (b *Broker) Publish(destination, contentType string, body []byte) int {
	h := frame.Header{}
	if contentType != "" {
		h[frame.HdrContentType] = contentType
	}
	return b.deliver(destination, h, body)
}

// Sessions returns the connected sessions.
func (b *Broker) Sessions() []SessionInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]SessionInfo, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, s.Info())
	}
	return out
}

// SessionCount returns the number of connected sessions.
func (b *Broker) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Destinations returns destination names with their subscription counts.
func (b *Broker) Destinations() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make(map[string]int, len(b.destinations))
	for d, subs := range b.destinations {
		result[d] = len(subs)
	}
	return result
}

// Published returns every SEND frame accepted so far.
func (b *Broker) Published() []Published {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Published(nil), b.published...)
}

// DropAll closes every session's socket without a STOMP goodbye.
func (b *Broker) DropAll() {
	b.mu.RLock()
	sessions := make([]*session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.RUnlock()
	for _, s := range sessions {
		s.conn.Close()
	}
}
