// Package tracing sets up OpenTelemetry spans for ingest, reset and destroy.
package tracing

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/logger"
)

// InstrumentationName names the AMS tracer
const InstrumentationName = "github.com/teranos/AMS"

var (
	initOnce sync.Once
	shutdown = func(context.Context) error { return nil }
	initErr  error
)

// Init installs a global tracer provider exporting to w (stderr when nil).
// When enabled is false the global no-op provider is left in place. The
// returned function flushes and stops the exporter.
func Init(ctx context.Context, enabled bool, w io.Writer, log *zap.SugaredLogger) (func(context.Context) error, error) {
	log = logger.OrNop(log)
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	initOnce.Do(func() {
		if w == nil {
			w = os.Stderr
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			initErr = errors.Wrap(err, "failed to create trace exporter")
			return
		}

		res, err := resource.New(ctx,
			resource.WithAttributes(semconv.ServiceNameKey.String("ams")),
		)
		if err != nil {
			log.Warnw("Trace resource init failed, continuing", logger.FieldError, err)
		}

		tp := NewProvider(exporter, res)
		otel.SetTracerProvider(tp)
		shutdown = tp.Shutdown
		log.Debugw("Tracing initialized")
	})
	return shutdown, initErr
}

// NewProvider builds a tracer provider that exports every span through exporter
func NewProvider(exporter sdktrace.SpanExporter, res *resource.Resource) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if res != nil {
		opts = append(opts, sdktrace.WithResource(res))
	}
	return sdktrace.NewTracerProvider(opts...)
}

// Tracer returns the AMS tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Start opens a span named name
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errors.ClassName(err))
	}
	span.End()
}
