package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/teranos/AMS/errors"
)

func TestStartEndRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.Background()
	_, ok := Start(ctx, "ams.reset", attribute.String("asset.id", "cpb-aacip-1"))
	End(ok, nil)

	_, bad := Start(ctx, "ams.destroy")
	End(bad, errors.Wrap(errors.ErrNotFound, "asset"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "ams.reset", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("asset.id", "cpb-aacip-1"))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Equal(t, "ams.destroy", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "NotFound", spans[1].Status().Description)
}

func TestInitDisabled(t *testing.T) {
	stop, err := Init(context.Background(), false, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, stop(context.Background()))
}
