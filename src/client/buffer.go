package client

import (
	"time"

	"github.com/hongjunjie0928/jango-chatRoom/config"
)

// BufferEntry is a publish deferred while disconnected.
type BufferEntry struct {
	Destination string
	Headers     map[string]string
	Body        []byte
	QueuedAt    time.Time
}

// outboundBuffer is a bounded FIFO of deferred publishes. Callers hold the
// client lock.
type outboundBuffer struct {
	entries  []BufferEntry
	capacity int
	policy   string
}

func newOutboundBuffer(capacity int, policy string) *outboundBuffer {
	if policy == "" {
		policy = config.BufferRejectNewest
	}
	return &outboundBuffer{capacity: capacity, policy: policy}
}

// push appends e. When full, reject-newest refuses e and drop-oldest evicts
// the head; the entry that did not make it is returned.
func (b *outboundBuffer) push(e BufferEntry) (dropped *BufferEntry, accepted bool) {
	if b.capacity <= 0 {
		return &e, false
	}
	if len(b.entries) < b.capacity {
		b.entries = append(b.entries, e)
		return nil, true
	}
	if b.policy == config.BufferDropOldest {
		head := b.entries[0]
		b.entries = append(b.entries[1:], e)
		return &head, true
	}
	return &e, false
}

// prepend puts unsent entries back at the head, keeping their order. Entries
// beyond capacity are discarded from the tail and returned.
func (b *outboundBuffer) prepend(es []BufferEntry) []BufferEntry {
	if len(es) == 0 {
		return nil
	}
	merged := append(append([]BufferEntry(nil), es...), b.entries...)
	if len(merged) <= b.capacity {
		b.entries = merged
		return nil
	}
	b.entries = merged[:b.capacity]
	return merged[b.capacity:]
}

func (b *outboundBuffer) drain() []BufferEntry {
	out := b.entries
	b.entries = nil
	return out
}

func (b *outboundBuffer) len() int { return len(b.entries) }
