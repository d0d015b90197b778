// Package telemetry installs the OpenTelemetry providers used by the httptxn
// command: OTLP trace export and an optional Prometheus scrape endpoint.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"pkt.systems/httptxn/internal/loggingutil"
	"pkt.systems/pslog"
)

// DefaultServiceName is reported as service.name when Config.ServiceName is empty.
const DefaultServiceName = "httptxn"

// Config selects which exporters Setup installs.
type Config struct {
	// Endpoint is an OTLP collector address. Bare host[:port] means insecure
	// gRPC; grpc://, grpcs://, http:// and https:// select explicitly.
	Endpoint string
	// MetricsListen serves Prometheus metrics on /metrics when set.
	MetricsListen string
	// RuntimeMetrics adds Go runtime metrics; requires MetricsListen.
	RuntimeMetrics bool
	ServiceName    string
}

// Enabled reports whether cfg asks for any exporter.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" || strings.TrimSpace(c.MetricsListen) != "" || c.RuntimeMetrics
}

// Bundle owns the installed providers and the metrics listener.
type Bundle struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metricsServer  *http.Server
	metricsLn      net.Listener
	logger         pslog.Logger
}

type otelErrorHandler struct {
	logger pslog.Logger
}

func (h otelErrorHandler) Handle(err error) {
	if err == nil {
		return
	}
	if strings.Contains(err.Error(), "waiting for connections to become ready") {
		h.logger.Debug("telemetry.exporter.retry", "error", err)
		return
	}
	h.logger.Warn("telemetry.exporter.error", "error", err)
}

type otlpTarget struct {
	protocol string // "grpc" or "http"
	endpoint string // host:port
	path     string
	insecure bool
}

var (
	runtimeMetricsOnce sync.Once
	runtimeMetricsErr  error
)

// Setup installs global tracer and meter providers according to cfg. It
// returns nil, nil when nothing is enabled.
func Setup(ctx context.Context, cfg Config, logger pslog.Logger) (*Bundle, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	logger = loggingutil.WithSubsystem(logger, "telemetry")
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	bundle := &Bundle{logger: logger}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		target, err := resolveOTLPTarget(endpoint)
		if err != nil {
			return nil, err
		}
		switch target.protocol {
		case "grpc":
			bundle.tracerProvider, err = setupGRPCTracing(ctx, target, res)
		default:
			bundle.tracerProvider, err = setupHTTPTracing(ctx, target, res)
		}
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(bundle.tracerProvider)
		logger.Info("telemetry.tracing.enabled",
			"protocol", target.protocol,
			"endpoint", target.endpoint,
			"path", target.path,
			"insecure", target.insecure,
		)
	}

	listen := strings.TrimSpace(cfg.MetricsListen)
	switch {
	case listen != "":
		if err := bundle.startMetrics(res, listen, cfg.RuntimeMetrics); err != nil {
			_ = bundle.Shutdown(ctx)
			return nil, err
		}
	case cfg.RuntimeMetrics:
		_ = bundle.Shutdown(ctx)
		return nil, errors.New("telemetry: runtime metrics require a metrics listen address")
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(otelErrorHandler{logger: logger})
	return bundle, nil
}

func (b *Bundle) startMetrics(res *resource.Resource, listen string, runtimeMetrics bool) error {
	registry := prometheus.NewRegistry()
	opts := []otelprometheus.Option{otelprometheus.WithRegisterer(registry)}
	if runtimeMetrics {
		opts = append(opts, otelprometheus.WithProducer(otelruntime.NewProducer()))
	}
	exporter, err := otelprometheus.New(opts...)
	if err != nil {
		return fmt.Errorf("telemetry: start prometheus exporter: %w", err)
	}
	b.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(b.meterProvider)
	if runtimeMetrics {
		if err := startRuntimeMetrics(b.meterProvider); err != nil {
			return err
		}
		b.logger.Info("telemetry.runtime_metrics.enabled")
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("telemetry: metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Warn("telemetry.metrics.serve_error", "error", err)
		}
	}()
	b.metricsServer = srv
	b.metricsLn = ln
	b.logger.Info("telemetry.metrics.enabled", "listen", ln.Addr().String())
	return nil
}

// MetricsAddr returns the bound metrics address, or "" when metrics are off.
func (b *Bundle) MetricsAddr() string {
	if b == nil || b.metricsLn == nil {
		return ""
	}
	return b.metricsLn.Addr().String()
}

// Shutdown flushes exporters and stops the metrics listener. A nil bundle is
// a no-op.
func (b *Bundle) Shutdown(ctx context.Context) error {
	if b == nil {
		return nil
	}
	var errs []error
	if b.meterProvider != nil {
		if err := b.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric shutdown: %w", err))
			b.logger.Warn("telemetry.shutdown.metric_failure", "error", err)
		}
	}
	if b.metricsServer != nil {
		if err := b.metricsServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
			b.logger.Warn("telemetry.shutdown.metrics_server_failure", "error", err)
		}
	}
	if b.metricsLn != nil {
		_ = b.metricsLn.Close()
	}
	if b.tracerProvider != nil {
		if err := b.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace shutdown: %w", err))
			b.logger.Warn("telemetry.shutdown.trace_failure", "error", err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	b.logger.Debug("telemetry.shutdown.complete")
	return nil
}

func setupGRPCTracing(ctx context.Context, target otlpTarget, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(target.endpoint),
		otlptracegrpc.WithTimeout(10 * time.Second),
	}
	if target.insecure {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	} else {
		opts = append(opts, otlptracegrpc.WithDialOption(
			grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, "")),
		))
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: start trace exporter (grpc): %w", err)
	}
	return newTracerProvider(exporter, res), nil
}

func setupHTTPTracing(ctx context.Context, target otlpTarget, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(target.endpoint),
		otlptracehttp.WithTimeout(10 * time.Second),
	}
	if target.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if target.path != "" && target.path != "/" {
		opts = append(opts, otlptracehttp.WithURLPath(target.path))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: start trace exporter (http): %w", err)
	}
	return newTracerProvider(exporter, res), nil
}

func newTracerProvider(exporter sdktrace.SpanExporter, res *resource.Resource) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithBatcher(exporter),
	)
}

func startRuntimeMetrics(provider metric.MeterProvider) error {
	runtimeMetricsOnce.Do(func() {
		runtimeMetricsErr = otelruntime.Start(otelruntime.WithMeterProvider(provider))
	})
	return runtimeMetricsErr
}

func resolveOTLPTarget(raw string) (otlpTarget, error) {
	if raw == "" {
		return otlpTarget{}, errors.New("telemetry: empty endpoint")
	}
	if !strings.Contains(raw, "://") {
		endpoint := raw
		if _, _, err := net.SplitHostPort(endpoint); err != nil {
			endpoint = net.JoinHostPort(endpoint, "4317")
		}
		return otlpTarget{protocol: "grpc", endpoint: endpoint, insecure: true}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return otlpTarget{}, fmt.Errorf("telemetry: parse endpoint: %w", err)
	}
	target := otlpTarget{
		endpoint: u.Host,
		path:     strings.TrimSuffix(u.Path, "/"),
	}
	defaultPort := "4317"
	switch strings.ToLower(u.Scheme) {
	case "grpc":
		target.protocol, target.insecure = "grpc", true
	case "grpcs":
		target.protocol = "grpc"
	case "http":
		target.protocol, target.insecure, defaultPort = "http", true, "4318"
	case "https":
		target.protocol, defaultPort = "http", "4318"
	default:
		return otlpTarget{}, fmt.Errorf("telemetry: unknown scheme %q", u.Scheme)
	}
	if target.endpoint == "" {
		return otlpTarget{}, errors.New("telemetry: missing endpoint host")
	}
	if u.Port() == "" {
		target.endpoint = net.JoinHostPort(u.Hostname(), defaultPort)
	}
	return target, nil
}
