package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracer_WritesSpansToProvidedWriter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer("hubcore-test", &buf)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	defer shutdown(context.Background())

	_, span := Tracer("hubcore-test").Start(context.Background(), "test-span")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "test-span")
}

func TestInitTracer_DefaultsToStderrWhenWriterIsNil(t *testing.T) {
	shutdown, err := InitTracer("hubcore-test", nil)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestTracer_ReturnsUsableTracerBeforeInit(t *testing.T) {
	tracer := Tracer("unconfigured")
	require.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "noop-span")
	span.End()
}
