package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewTransport(reg)

	m.CommandSent("Browser.getVersion")
	m.CommandSent("Target.createTarget")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PendingCalls))

	m.CommandDone("Browser.getVersion", time.Now(), nil)
	m.CommandDone("Target.createTarget", time.Now(), errors.New("boom"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PendingCalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsSent.WithLabelValues("Browser.getVersion")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CommandErrors.WithLabelValues("Browser.getVersion")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandErrors.WithLabelValues("Target.createTarget")))

	m.FrameDropped(ReasonMalformed)
	m.FrameDropped(ReasonMalformed)
	m.FrameDropped(ReasonUnroutable)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DroppedFrames.WithLabelValues(ReasonMalformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedFrames.WithLabelValues(ReasonUnroutable)))

	m.ConnectionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsClosed))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestTransportNil(t *testing.T) {
	t.Parallel()

	var m *Transport
	assert.NotPanics(t, func() {
		m.CommandSent("Browser.close")
		m.CommandDone("Browser.close", time.Now(), nil)
		m.FrameDropped(ReasonNotText)
		m.EventDelivered("Target.attachedToTarget")
		m.ConnectionClosed()
	})
}

func TestTransportDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_ = NewTransport(reg)
	assert.Panics(t, func() { _ = NewTransport(reg) })
}
