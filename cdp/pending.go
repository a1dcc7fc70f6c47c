package cdp

import (
	"sync"

	"github.com/chromedp/cdproto"
)

// pendingCalls maps in-flight message IDs to the channel their caller is
// waiting on. Each channel has room for exactly one response, so routing a
// response never blocks the receive loop.
type pendingCalls struct {
	mu    sync.Mutex
	calls map[int64]chan *cdproto.Message
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{
		calls: make(map[int64]chan *cdproto.Message),
	}
}

// register adds a completion slot for id and returns it.
// It must be called before the message with id is written.
func (p *pendingCalls) register(id int64) <-chan *cdproto.Message {
	ch := make(chan *cdproto.Message, 1)

	p.mu.Lock()
	p.calls[id] = ch
	p.mu.Unlock()

	return ch
}

// take removes and returns the slot for id.
func (p *pendingCalls) take(id int64) (chan<- *cdproto.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.calls[id]
	if ok {
		delete(p.calls, id)
	}
	return ch, ok
}

// forget removes the slot for id, if any. Used when the caller stops
// waiting so that the table doesn't grow with abandoned calls.
func (p *pendingCalls) forget(id int64) {
	p.mu.Lock()
	delete(p.calls, id)
	p.mu.Unlock()
}

// clear drops every slot and returns how many were pending.
func (p *pendingCalls) clear() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.calls)
	p.calls = make(map[int64]chan *cdproto.Message)
	return n
}

func (p *pendingCalls) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
