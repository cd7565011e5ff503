package stomptest

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/hongjunjie0928/jango-chatRoom/src/frame"
)

func (b *Broker) handleFrame(s *session, f *frame.Frame) {
	switch f.Command {
	case frame.Connect, frame.Stomp:
		b.handleConnect(s, f)
		return
	case frame.Subscribe:
		b.handleSubscribe(s, f)
	case frame.Unsubscribe:
		b.handleUnsubscribe(s, f)
	case frame.Send:
		b.handleSend(s, f)
	case frame.Disconnect:
		b.logger.Debug().Str("session", s.ID).Msg("client disconnecting")
	default:
		b.logger.Debug().Str("command", f.Command).Msg("unsupported command ignored")
	}
	if r := f.Get(frame.HdrReceipt); r != "" {
		s.write(frame.New(frame.Receipt, frame.HdrReceiptID, r))
	}
}

func (b *Broker) handleConnect(s *session, f *frame.Frame) {
	if b.opts.Silent {
		return
	}
	if auth := b.opts.Authenticate; auth != nil && !auth(f.Header) {
		s.write(frame.New(frame.Error, frame.HdrMessage, "authentication failed"))
		return
	}
	hb := "0,0"
	if b.opts.HeartBeat > 0 {
		ms := strconv.FormatInt(b.opts.HeartBeat.Milliseconds(), 10)
		hb = ms + ",0"
	}
	s.write(frame.New(frame.Connected,
		frame.HdrVersion, "1.2",
		frame.HdrSession, s.ID,
		frame.HdrServer, "stomptest/1.0",
		frame.HdrHeartBeat, hb,
	))

	b.mu.RLock()
	callbacks := b.onConnect
	b.mu.RUnlock()
	info := s.Info()
	for _, cb := range callbacks {
		cb(info)
	}
}

func (b *Broker) handleSubscribe(s *session, f *frame.Frame) {
	id, dest := f.Get(frame.HdrID), f.Get(frame.HdrDestination)
	if id == "" || dest == "" {
		s.write(frame.New(frame.Error, frame.HdrMessage, "SUBSCRIBE requires id and destination"))
		return
	}
	b.mu.Lock()
	if b.destinations[dest] == nil {
		b.destinations[dest] = make(map[string]subscriber)
	}
	b.destinations[dest][subKey(s, id)] = subscriber{session: s, id: id}
	b.mu.Unlock()
	s.addSub(id, dest)

	b.logger.Debug().Str("session", s.ID).Str("destination", dest).Str("id", id).Msg("subscribed")
}

func (b *Broker) handleUnsubscribe(s *session, f *frame.Frame) {
	id := f.Get(frame.HdrID)
	dest, ok := s.removeSub(id)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.destinations[dest]; ok {
		delete(subs, subKey(s, id))
		if len(subs) == 0 {
			delete(b.destinations, dest)
		}
	}
}

func (b *Broker) handleSend(s *session, f *frame.Frame) {
	dest := f.Get(frame.HdrDestination)
	if dest == "" {
		s.write(frame.New(frame.Error, frame.HdrMessage, "SEND requires destination"))
		return
	}
	b.mu.Lock()
	b.published = append(b.published, Published{
		Destination: dest,
		Headers:     f.Header.Clone(),
		Body:        append([]byte(nil), f.Body...),
		SessionID:   s.ID,
	})
	b.mu.Unlock()

	b.deliver(dest, f.Header, f.Body)
}

// deliver fans a MESSAGE out to every subscription on dest.
func (b *Broker) deliver(dest string, h frame.Header, body []byte) int {
	b.mu.RLock()
	subs := make([]subscriber, 0, len(b.destinations[dest]))
	for _, sub := range b.destinations[dest] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		msg := frame.New(frame.Message,
			frame.HdrDestination, dest,
			frame.HdrSubscription, sub.id,
			frame.HdrMessageID, uuid.NewString(),
		)
		for k, v := range h {
			switch k {
			case frame.HdrDestination, frame.HdrReceipt, frame.HdrContentLength:
			default:
				msg.Set(k, v)
			}
		}
		msg.Body = body
		if !sub.session.write(msg) {
			b.logger.Warn().Str("session", sub.session.ID).Msg("send buffer full, dropping")
		}
	}
	return len(subs)
}
