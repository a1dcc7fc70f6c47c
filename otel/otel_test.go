package otel

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStdoutTraceProvider(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tp, err := NewStdoutTraceProvider(&buf)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "Page.navigate")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	var got struct {
		Name     string
		Resource []struct {
			Key   string
			Value struct{ Value any }
		}
	}
	require.NoError(t, json.NewDecoder(&buf).Decode(&got))
	assert.Equal(t, "Page.navigate", got.Name)

	attrs := map[string]any{}
	for _, kv := range got.Resource {
		attrs[kv.Key] = kv.Value.Value
	}
	assert.Equal(t, serviceName, attrs["service.name"])
}

func TestNewTraceProvider(t *testing.T) {
	t.Parallel()

	_, err := NewTraceProvider(context.Background(), "grpc", "localhost:4317", true)
	require.ErrorIs(t, err, ErrUnsupportedProto)

	tp, err := NewTraceProvider(context.Background(), "HTTP", "localhost:4318", true)
	require.NoError(t, err)
	assert.NotNil(t, tp.Tracer("test"))

	// Nothing was traced, so there's nothing to export.
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewNoopTraceProvider(t *testing.T) {
	t.Parallel()

	tp := NewNoopTraceProvider()
	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))
}
