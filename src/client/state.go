package client

import (
	"context"
	"sync"

	"github.com/hongjunjie0928/jango-chatRoom/src/types"
)

// State is the connection state of a Client.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Disconnecting
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Future is the one-shot result of a connect call. It is fulfilled exactly
// once by whichever terminal event happens first.
type Future struct {
	done chan struct{}
	once sync.Once
	info *types.ConnectedInfo
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolvedFuture(info *types.ConnectedInfo, err error) *Future {
	f := newFuture()
	f.complete(info, err)
	return f
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result returns the outcome; only meaningful after Done is closed.
func (f *Future) Result() (*types.ConnectedInfo, error) {
	select {
	case <-f.done:
		return f.info, f.err
	default:
		return nil, nil
	}
}

// Wait blocks until the future completes or ctx ends. Giving up on ctx does
// not abort the connection attempt; the connection timeout does.
func (f *Future) Wait(ctx context.Context) (*types.ConnectedInfo, error) {
	select {
	case <-f.done:
		return f.info, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) complete(info *types.ConnectedInfo, err error) {
	f.once.Do(func() {
		f.info, f.err = info, err
		close(f.done)
	})
}
