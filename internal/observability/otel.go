// Package observability provides OpenTelemetry integration for metrics,
// tracing, and logging. Metrics are exported via Prometheus; traces and
// logs go to an OTLP endpoint over gRPC or HTTP.
package observability

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

const shutdownGrace = 5 * time.Second

// Config holds OpenTelemetry initialization parameters.
type Config struct {
	ServiceName      string
	ServiceVersion   string
	Environment      string
	TraceSampleRatio float64
	OTLP             OTLPExporterConfig
}

// OTLPExporterConfig holds OTLP exporter options shared by traces and logs.
type OTLPExporterConfig struct {
	Endpoint          string
	Protocol          string // "grpc" or "http/protobuf"
	Insecure          bool
	TLSCertFile       string
	TLSClientCertFile string
	TLSClientKeyFile  string
	Headers           map[string]string
	Timeout           time.Duration
	Compression       string // "none" or "gzip"
	RetryEnabled      bool
	RetryMaxAttempts  int
}

func newResource(cfg Config) (*resource.Resource, error) {
	// Schema URL is left empty to avoid merge conflicts across SDK versions.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

type otlpProtocol string

const (
	otlpProtocolGRPC otlpProtocol = "grpc"
	otlpProtocolHTTP otlpProtocol = "http/protobuf"
)

func parseOTLPProtocol(value string) (otlpProtocol, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(otlpProtocolGRPC):
		return otlpProtocolGRPC, nil
	case "http", string(otlpProtocolHTTP):
		return otlpProtocolHTTP, nil
	default:
		return "", fmt.Errorf("unsupported OTLP protocol %q (use grpc or http/protobuf)", value)
	}
}

func buildTLSConfig(cfg OTLPExporterConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.TLSCertFile != "" {
		caCert, err := os.ReadFile(cfg.TLSCertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read OTLP TLS CA file: %w", err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse OTLP TLS CA file")
		}
		tlsConfig.RootCAs = certPool
	}

	if cfg.TLSClientCertFile != "" || cfg.TLSClientKeyFile != "" {
		if cfg.TLSClientCertFile == "" || cfg.TLSClientKeyFile == "" {
			return nil, fmt.Errorf("OTLP TLS client cert and key must both be set")
		}
		cert, err := tls.LoadX509KeyPair(cfg.TLSClientCertFile, cfg.TLSClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load OTLP TLS client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func isHTTPEndpointURL(endpoint string) bool {
	return strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
}

// MeterProvider wraps the OpenTelemetry meter provider backed by Prometheus.
type MeterProvider struct {
	provider *sdkmetric.MeterProvider
	exporter *prometheus.Exporter
}

// InitMeterProvider initializes metrics with a Prometheus exporter and sets
// the global meter provider.
func InitMeterProvider(cfg Config) (*MeterProvider, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	return &MeterProvider{provider: provider, exporter: exporter}, nil
}

// Shutdown gracefully shuts down the meter provider.
func (mp *MeterProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	if err := mp.provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown meter provider", slog.String("error", err.Error()))
		return err
	}
	logger.Info("meter provider shutdown successfully")
	return nil
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// InitTracerProvider initializes tracing with an OTLP exporter and sets the
// global tracer provider.
func InitTracerProvider(cfg Config) (*TracerProvider, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	protocol, err := parseOTLPProtocol(cfg.OTLP.Protocol)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	switch protocol {
	case otlpProtocolGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLP.Endpoint)}
		if cfg.OTLP.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			tlsConfig, err := buildTLSConfig(cfg.OTLP)
			if err != nil {
				return nil, err
			}
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(tlsConfig)))
		}
		if len(cfg.OTLP.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.OTLP.Headers))
		}
		if cfg.OTLP.Timeout > 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(cfg.OTLP.Timeout))
		}
		if cfg.OTLP.Compression == "gzip" {
			opts = append(opts, otlptracegrpc.WithCompressor("gzip"))
		}
		if cfg.OTLP.RetryEnabled && cfg.OTLP.RetryMaxAttempts > 0 {
			opts = append(opts, otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
				Enabled:         true,
				MaxElapsedTime:  30 * time.Second,
				MaxInterval:     5 * time.Second,
				InitialInterval: 1 * time.Second,
			}))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
	case otlpProtocolHTTP:
		var opts []otlptracehttp.Option
		if isHTTPEndpointURL(cfg.OTLP.Endpoint) {
			opts = append(opts, otlptracehttp.WithEndpointURL(cfg.OTLP.Endpoint))
		} else {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLP.Endpoint))
		}
		if cfg.OTLP.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else {
			tlsConfig, err := buildTLSConfig(cfg.OTLP)
			if err != nil {
				return nil, err
			}
			opts = append(opts, otlptracehttp.WithTLSClientConfig(tlsConfig))
		}
		if len(cfg.OTLP.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.OTLP.Headers))
		}
		if cfg.OTLP.Timeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(cfg.OTLP.Timeout))
		}
		if cfg.OTLP.Compression == "gzip" {
			opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
		}
		if cfg.OTLP.RetryEnabled && cfg.OTLP.RetryMaxAttempts > 0 {
			opts = append(opts, otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
				Enabled:         true,
				MaxElapsedTime:  30 * time.Second,
				MaxInterval:     5 * time.Second,
				InitialInterval: 1 * time.Second,
			}))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(traceSamplerForRatio(cfg.TraceSampleRatio)),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{provider: provider}, nil
}

func traceSamplerForRatio(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		return sdktrace.NeverSample()
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// Shutdown gracefully shuts down the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	if err := tp.provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer provider", slog.String("error", err.Error()))
		return err
	}
	logger.Info("tracer provider shutdown successfully")
	return nil
}

// LoggerProvider wraps the OpenTelemetry logger provider used by the
// otelslog bridge.
type LoggerProvider struct {
	provider *sdklog.LoggerProvider
}

// InitLoggerProvider initializes OTLP log export.
func InitLoggerProvider(cfg Config) (*LoggerProvider, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	protocol, err := parseOTLPProtocol(cfg.OTLP.Protocol)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	var exporter sdklog.Exporter
	switch protocol {
	case otlpProtocolGRPC:
		opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.OTLP.Endpoint)}
		if cfg.OTLP.Insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		} else {
			tlsConfig, err := buildTLSConfig(cfg.OTLP)
			if err != nil {
				return nil, err
			}
			opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewTLS(tlsConfig)))
		}
		if len(cfg.OTLP.Headers) > 0 {
			opts = append(opts, otlploggrpc.WithHeaders(cfg.OTLP.Headers))
		}
		if cfg.OTLP.Timeout > 0 {
			opts = append(opts, otlploggrpc.WithTimeout(cfg.OTLP.Timeout))
		}
		if cfg.OTLP.Compression == "gzip" {
			opts = append(opts, otlploggrpc.WithCompressor("gzip"))
		}
		if cfg.OTLP.RetryEnabled && cfg.OTLP.RetryMaxAttempts > 0 {
			opts = append(opts, otlploggrpc.WithRetry(otlploggrpc.RetryConfig{
				Enabled:         true,
				MaxElapsedTime:  30 * time.Second,
				MaxInterval:     5 * time.Second,
				InitialInterval: 1 * time.Second,
			}))
		}
		exporter, err = otlploggrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
	case otlpProtocolHTTP:
		var opts []otlploghttp.Option
		if isHTTPEndpointURL(cfg.OTLP.Endpoint) {
			opts = append(opts, otlploghttp.WithEndpointURL(cfg.OTLP.Endpoint))
		} else {
			opts = append(opts, otlploghttp.WithEndpoint(cfg.OTLP.Endpoint))
		}
		if cfg.OTLP.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		} else {
			tlsConfig, err := buildTLSConfig(cfg.OTLP)
			if err != nil {
				return nil, err
			}
			opts = append(opts, otlploghttp.WithTLSClientConfig(tlsConfig))
		}
		if len(cfg.OTLP.Headers) > 0 {
			opts = append(opts, otlploghttp.WithHeaders(cfg.OTLP.Headers))
		}
		if cfg.OTLP.Timeout > 0 {
			opts = append(opts, otlploghttp.WithTimeout(cfg.OTLP.Timeout))
		}
		if cfg.OTLP.Compression == "gzip" {
			opts = append(opts, otlploghttp.WithCompression(otlploghttp.GzipCompression))
		}
		if cfg.OTLP.RetryEnabled && cfg.OTLP.RetryMaxAttempts > 0 {
			opts = append(opts, otlploghttp.WithRetry(otlploghttp.RetryConfig{
				Enabled:         true,
				MaxElapsedTime:  30 * time.Second,
				MaxInterval:     5 * time.Second,
				InitialInterval: 1 * time.Second,
			}))
		}
		exporter, err = otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	return &LoggerProvider{provider: provider}, nil
}

// Provider returns the underlying logger provider.
func (lp *LoggerProvider) Provider() *sdklog.LoggerProvider {
	return lp.provider
}

// Shutdown gracefully shuts down the logger provider.
func (lp *LoggerProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	if err := lp.provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown logger provider", slog.String("error", err.Error()))
		return err
	}
	logger.Info("logger provider shutdown successfully")
	return nil
}
