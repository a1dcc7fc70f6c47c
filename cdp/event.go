package cdp

import (
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/target"
)

const eventBufferSize = 16

// Event is a decoded CDP event frame.
type Event struct {
	Name      cdproto.MethodType
	SessionID target.SessionID
	Data      any
}

type eventSub struct {
	ch     chan *Event
	events map[cdproto.MethodType]bool
}

type eventWatcher struct {
	subsMu sync.RWMutex
	subs   map[*eventSub]struct{}
}

func newEventWatcher() *eventWatcher {
	return &eventWatcher{
		subs: make(map[*eventSub]struct{}),
	}
}

// subscribe returns a channel receiving the given events and a function
// that unsubscribes and closes it.
func (w *eventWatcher) subscribe(events ...cdproto.MethodType) (<-chan *Event, func()) {
	sub := &eventSub{
		ch:     make(chan *Event, eventBufferSize),
		events: make(map[cdproto.MethodType]bool, len(events)),
	}
	for _, evt := range events {
		sub.events[evt] = true
	}

	w.subsMu.Lock()
	w.subs[sub] = struct{}{}
	w.subsMu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			w.subsMu.Lock()
			defer w.subsMu.Unlock()
			// closeAll may have closed it already.
			if _, ok := w.subs[sub]; ok {
				delete(w.subs, sub)
				close(sub.ch)
			}
		})
	}
}

// wants reports whether anyone is subscribed to name.
func (w *eventWatcher) wants(name cdproto.MethodType) bool {
	w.subsMu.RLock()
	defer w.subsMu.RUnlock()

	for sub := range w.subs {
		if sub.events[name] {
			return true
		}
	}
	return false
}

// notify hands evt to every subscriber without blocking, and returns how
// many subscribers received it and how many skipped it because their
// buffer was full.
func (w *eventWatcher) notify(evt *Event) (delivered, skipped int) {
	w.subsMu.RLock()
	defer w.subsMu.RUnlock()

	for sub := range w.subs {
		if !sub.events[evt.Name] {
			continue
		}
		select {
		case sub.ch <- evt:
			delivered++
		default:
			skipped++
		}
	}
	return delivered, skipped
}

// closeAll unsubscribes everyone.
func (w *eventWatcher) closeAll() {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()

	for sub := range w.subs {
		delete(w.subs, sub)
		close(sub.ch)
	}
}
