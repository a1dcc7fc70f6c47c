package cdp

import (
	"testing"

	"github.com/chromedp/cdproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingCalls(t *testing.T) {
	t.Parallel()

	p := newPendingCalls()

	ch0 := p.register(0)
	_ = p.register(1)
	assert.Equal(t, 2, p.len())

	slot, ok := p.take(0)
	require.True(t, ok)
	slot <- &cdproto.Message{ID: 0}
	msg := <-ch0
	assert.Equal(t, int64(0), msg.ID)

	_, ok = p.take(0)
	assert.False(t, ok, "a slot is taken once")

	p.forget(1)
	p.forget(1)
	_, ok = p.take(1)
	assert.False(t, ok)
	assert.Zero(t, p.len())

	p.register(2)
	p.register(3)
	assert.Equal(t, 2, p.clear())
	assert.Zero(t, p.len())
	assert.Zero(t, p.clear())
}

func TestEventWatcher(t *testing.T) {
	t.Parallel()

	w := newEventWatcher()
	assert.False(t, w.wants(cdproto.EventTargetTargetCreated))

	created, unsubCreated := w.subscribe(cdproto.EventTargetTargetCreated)
	both, unsubBoth := w.subscribe(cdproto.EventTargetTargetCreated, cdproto.EventTargetTargetDestroyed)
	assert.True(t, w.wants(cdproto.EventTargetTargetDestroyed))

	delivered, skipped := w.notify(&Event{Name: cdproto.EventTargetTargetDestroyed})
	assert.Equal(t, 1, delivered)
	assert.Zero(t, skipped)
	assert.Equal(t, cdproto.MethodType(cdproto.EventTargetTargetDestroyed), (<-both).Name)

	for i := 0; i < eventBufferSize; i++ {
		w.notify(&Event{Name: cdproto.EventTargetTargetCreated})
	}
	delivered, skipped = w.notify(&Event{Name: cdproto.EventTargetTargetCreated})
	assert.Zero(t, delivered)
	assert.Equal(t, 2, skipped, "full subscribers don't block the notifier")
	assert.Len(t, created, eventBufferSize)

	unsubBoth()
	unsubBoth()
	assert.False(t, w.wants(cdproto.EventTargetTargetDestroyed))

	w.closeAll()
	assert.NotPanics(t, unsubCreated)
	assert.False(t, w.wants(cdproto.EventTargetTargetCreated))
}
