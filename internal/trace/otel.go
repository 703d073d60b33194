// Package trace installs the OpenTelemetry providers for spans, metrics and logs.
package trace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Exporter names accepted by Config.Exporter.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
)

// Config selects exporters for the three signal pipelines.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Exporter picks the span exporter; see the Exporter* constants.
	Exporter string
	// Endpoint is host:port for gRPC or a base URL for HTTP.
	Endpoint    string
	SampleRatio float64
	// MetricsOTLP pushes metrics over OTLP/HTTP to Endpoint.
	MetricsOTLP bool
	// LogsEnabled installs an OTLP/HTTP logger provider as the global one.
	LogsEnabled bool
	// Registry, when set, receives OTel metrics through the Prometheus bridge.
	Registry *prometheus.Registry
}

// ConfigFromEnv reads the standard OTEL_* variables plus TRACE_EXPORTER.
func ConfigFromEnv(serviceName, version string) Config {
	cfg := Config{
		ServiceName:    getEnv("OTEL_SERVICE_NAME", serviceName),
		ServiceVersion: version,
		Environment:    getEnv("DEPLOYMENT_ENV", "development"),
		Exporter:       strings.ToLower(getEnv("TRACE_EXPORTER", ExporterNone)),
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SampleRatio:    1,
		MetricsOTLP:    envBool("OTEL_METRICS_ENABLED"),
		LogsEnabled:    envBool("OTEL_LOGS_ENABLED"),
	}
	if v := os.Getenv("OTEL_TRACE_SAMPLE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.SampleRatio = f
		}
	}
	return cfg
}

// Runtime stores initialized providers and a shutdown hook.
type Runtime struct {
	Tracer   oteltrace.Tracer
	Meter    metric.Meter
	Shutdown func(context.Context) error
}

// Setup installs global tracer, meter and logger providers. With the none
// exporter and no registry it returns the current globals untouched.
func Setup(ctx context.Context, cfg Config) (*Runtime, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "fluxgen"
	}
	if cfg.Exporter == "" {
		cfg.Exporter = ExporterNone
	}

	var shutdowns []func(context.Context) error
	rt := &Runtime{
		Tracer: otel.Tracer(cfg.ServiceName),
		Meter:  otel.Meter(cfg.ServiceName),
		Shutdown: func(ctx context.Context) error {
			return nil
		},
	}
	if cfg.Exporter == ExporterNone && cfg.Registry == nil && !cfg.MetricsOTLP && !cfg.LogsEnabled {
		return rt, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	if cfg.Exporter != ExporterNone {
		exp, err := newSpanExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		rt.Tracer = tp.Tracer(cfg.ServiceName)
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	var readers []sdkmetric.Option
	if cfg.Registry != nil {
		exp, err := otelprom.New(otelprom.WithRegisterer(cfg.Registry))
		if err != nil {
			return nil, fmt.Errorf("otel prometheus exporter: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(exp))
	}
	if cfg.MetricsOTLP {
		exp, err := otlpmetrichttp.New(ctx, httpMetricOptions(cfg.Endpoint)...)
		if err != nil {
			return nil, fmt.Errorf("otel otlp metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second))))
	}
	if len(readers) > 0 {
		mp := sdkmetric.NewMeterProvider(append(readers, sdkmetric.WithResource(res))...)
		otel.SetMeterProvider(mp)
		rt.Meter = mp.Meter(cfg.ServiceName)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	if cfg.LogsEnabled {
		exp, err := otlploghttp.New(ctx, httpLogOptions(cfg.Endpoint)...)
		if err != nil {
			return nil, fmt.Errorf("otel otlp log exporter: %w", err)
		}
		lp := sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
			sdklog.WithResource(res),
		)
		global.SetLoggerProvider(lp)
		shutdowns = append(shutdowns, lp.Shutdown)
	}

	rt.Shutdown = func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			if err := shutdowns[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return rt, nil
}

func newSpanExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("otel stdout exporter: %w", err)
		}
		return exp, nil
	case ExporterOTLPGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(stripScheme(cfg.Endpoint)))
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otel otlp grpc exporter: %w", err)
		}
		return exp, nil
	case ExporterOTLPHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(withScheme(cfg.Endpoint)+"/v1/traces"))
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otel otlp http exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}

func httpMetricOptions(endpoint string) []otlpmetrichttp.Option {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
	if endpoint != "" {
		opts = append(opts, otlpmetrichttp.WithEndpointURL(withScheme(endpoint)+"/v1/metrics"))
	}
	return opts
}

func httpLogOptions(endpoint string) []otlploghttp.Option {
	opts := []otlploghttp.Option{otlploghttp.WithInsecure()}
	if endpoint != "" {
		opts = append(opts, otlploghttp.WithEndpointURL(withScheme(endpoint)+"/v1/logs"))
	}
	return opts
}

func withScheme(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "http://" + endpoint
}

func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimRight(endpoint, "/")
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}
