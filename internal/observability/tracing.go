package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/visitor-globe/internal/logging"
)

// TracerName is the instrumentation scope of the globe.Spawn and
// feed.Fetch spans.
const TracerName = "github.com/signalsfoundry/visitor-globe"

const defaultOTLPEndpoint = "localhost:4317"

// TracingConfig is the tracing section of the globe config.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	ServiceName string  `koanf:"service_name" validate:"required_if=Enabled true"`
	Exporter    string  `koanf:"exporter" validate:"omitempty,oneof=stdout otlp otlpgrpc"`
	Endpoint    string  `koanf:"endpoint"` // otlp only
	SampleRatio float64 `koanf:"sample_ratio" validate:"gte=0,lte=1"`
}

// InitTracing installs the global tracer provider for cfg and returns its
// shutdown func. A disabled config installs a noop provider, so spans
// opened by the engine and the feed cost nothing.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Info(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	tp, err := newTracerProvider(ctx, cfg, os.Stdout)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float64("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

// newTracerProvider builds a batching provider. Stdout spans go to w.
func newTracerProvider(ctx context.Context, cfg TracingConfig, w io.Writer) (*sdktrace.TracerProvider, error) {
	exp, err := newExporter(ctx, cfg, w)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "globe"),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

func newExporter(ctx context.Context, cfg TracingConfig, w io.Writer) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "", "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes spans within five seconds. The error is
// logged and returned for the caller to aggregate.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) error {
	if shutdown == nil {
		return nil
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
		return err
	}
	return nil
}
