// Package emitter republishes decoded inbound frames to in-process
// subscribers. It bridges the push-based channel to the RPC engine.
package emitter

import (
	"sync"

	"github.com/kiteleaf/exthost/internal/protocol"
)

type subscriber struct {
	id int
	fn func(*protocol.Frame)
}

// Emitter is a process-local event source. Publish is synchronous: every
// current subscriber sees the frame before Publish returns, so when it is
// driven from the single channel read loop, frame handling stays strictly
// sequential and never concurrent.
type Emitter struct {
	mu     sync.Mutex
	subs   []subscriber
	nextID int
}

func New() *Emitter {
	return &Emitter{}
}

// Subscribe registers fn for every subsequently published frame, in
// registration order relative to other subscribers. The returned cancel
// func removes the subscription; calling it more than once is harmless.
func (e *Emitter) Subscribe(fn func(*protocol.Frame)) (cancel func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs = append(e.subs, subscriber{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers one frame to all current subscribers synchronously.
func (e *Emitter) Publish(f *protocol.Frame) {
	e.mu.Lock()
	subs := e.subs
	e.mu.Unlock()

	for _, s := range subs {
		s.fn(f)
	}
}
