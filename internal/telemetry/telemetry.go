// Package telemetry initialises optional OpenTelemetry trace, metric, and
// log providers backed by an OTLP gRPC collector. All three exporters share
// one gRPC connection.
//
// Call [Setup] once during startup and defer the returned [ShutdownFunc].
// Without a configured collector the global providers stay no-ops, so the
// sync engine's spans and counters cost nothing on an unconfigured till.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultServiceName = "tillsync"

// Config groups all telemetry settings. It maps 1-to-1 with the
// [config.TelemetryConfig] YAML block.
type Config struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector,
	// e.g. "localhost:4317" or "otelcol.example.com:4317".
	OTLPEndpoint string

	// Insecure disables TLS for the collector connection. Set to true for
	// local collectors without a TLS cert.
	Insecure bool

	// ServiceName overrides the OTel service.name resource attribute.
	// Useful when several tills report to one collector ("till-7").
	// Defaults to "tillsync".
	ServiceName string

	// Headers is sent as gRPC metadata on every OTLP request, typically
	// authentication tokens such as {"Authorization": "Bearer <token>"}.
	Headers map[string]string
}

// ShutdownFunc flushes and closes all OTel providers. Call it with a fresh
// context; the main context is usually cancelled by the time shutdown runs.
type ShutdownFunc func(context.Context) error

// Setup initialises the global OpenTelemetry trace, metric, and log
// providers against cfg.OTLPEndpoint. The returned ShutdownFunc is always
// non-nil, a no-op on error, so callers can defer unconditionally.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	svcName := cfg.ServiceName
	if svcName == "" {
		svcName = defaultServiceName
	}

	// resource.NewSchemaless avoids the schema URL mismatch between
	// resource.Default() (SDK semconv) and our semconv import.
	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(svcName)))
	if err != nil {
		return noopShutdown, fmt.Errorf("building OTel resource: %w", err)
	}

	var creds credentials.TransportCredentials
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	} else {
		creds = credentials.NewTLS(nil) // system root CAs
	}
	conn, err := grpc.NewClient(cfg.OTLPEndpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return noopShutdown, fmt.Errorf("dialling OTLP collector at %q: %w", cfg.OTLPEndpoint, err)
	}

	// cleanup tears down whatever has been built so far when a later
	// exporter fails to initialise.
	var cleanup []func(context.Context) error
	fail := func(err error) (ShutdownFunc, error) {
		for _, fn := range cleanup {
			_ = fn(ctx)
		}
		_ = conn.Close()
		return noopShutdown, err
	}

	traceExp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithGRPCConn(conn),
		otlptracegrpc.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return fail(fmt.Errorf("creating OTLP trace exporter: %w", err))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	cleanup = append(cleanup, tp.Shutdown)

	metricExp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithGRPCConn(conn),
		otlpmetricgrpc.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return fail(fmt.Errorf("creating OTLP metric exporter: %w", err))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	cleanup = append(cleanup, mp.Shutdown)

	logExp, err := otlploggrpc.New(ctx,
		otlploggrpc.WithGRPCConn(conn),
		otlploggrpc.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return fail(fmt.Errorf("creating OTLP log exporter: %w", err))
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	return func(ctx context.Context) error {
		var errs []error
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric provider shutdown: %w", err))
		}
		if err := lp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log provider shutdown: %w", err))
		}
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("OTLP gRPC connection close: %w", err))
		}
		return errors.Join(errs...)
	}, nil
}

// noopShutdown is returned on error so callers can always defer.
func noopShutdown(context.Context) error { return nil }
