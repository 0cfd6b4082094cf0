package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tin-report/internal/config"
	"tin-report/internal/logging"
	"tin-report/internal/middleware"
	"tin-report/internal/observability"
	"tin-report/internal/report"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLP:           otlpExporterConfig(logsConfig),
	})
	if err != nil {
		return nil, nil, err
	}

	// Rebuild the logger so records also flow through the OTLP bridge.
	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func otlpExporterConfig(c config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:          c.Endpoint,
		Protocol:          c.Protocol,
		Insecure:          c.Insecure,
		TLSCertFile:       c.TLSCertFile,
		TLSClientCertFile: c.TLSClientCertFile,
		TLSClientKeyFile:  c.TLSClientKeyFile,
		Headers:           c.Headers,
		Timeout:           c.Timeout,
		Compression:       c.Compression,
		RetryEnabled:      c.RetryEnabled,
		RetryMaxAttempts:  c.RetryMaxAttempts,
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.ReportMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("environment", cfg.Observability.Environment),
	)

	meterProvider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, nil, err
	}

	reportMetrics, err := observability.InitReportMetrics()
	if err != nil {
		return nil, nil, err
	}

	return meterProvider, reportMetrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Bool("insecure", tracesConfig.Insecure),
	)

	tracerProvider, err := observability.InitTracerProvider(observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLP:             otlpExporterConfig(tracesConfig),
	})
	if err != nil {
		return nil, err
	}

	return tracerProvider, nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	// Register custom TLS configuration if needed (for verify-ca/verify-full modes)
	if err := cfg.Warehouse.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register warehouse TLS config: %w", err)
	}

	dsn := cfg.Warehouse.DSN()

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		opts := []otelsql.Option{
			otelsql.WithAttributes(semconv.DBSystemMySQL),
		}
		if cfg.Observability.TracingEnabled {
			opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
				DisableErrSkip: true,
			}))
		}

		db, err := otelsql.Open("mysql", dsn, opts...)
		if err != nil {
			return nil, nil, err
		}

		var dbStatsReg interface{ Unregister() error }
		if cfg.Observability.MetricsEnabled {
			dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
			if err != nil {
				logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
			}
		}

		logger.Info("warehouse instrumentation enabled",
			slog.Bool("metrics", cfg.Observability.MetricsEnabled),
			slog.Bool("tracing", cfg.Observability.TracingEnabled),
		)
		return db, dbStatsReg, nil
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, nil, err
	}
	return db, nil, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, effectiveDatabase string, dsnPresent bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db.SetMaxOpenConns(cfg.Warehouse.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Warehouse.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Warehouse.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to warehouse",
		slog.String("database", effectiveDatabase),
		slog.Bool("dsn_present", dsnPresent),
		slog.Int("pool_max_open", cfg.Warehouse.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Warehouse.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Warehouse.Pool.MaxLifetime),
	)
	return nil
}

func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := cfg.Warehouse.ConnectionTimeout
	interval := cfg.Warehouse.ConnectionRetryInterval

	// If timeout is 0, try once and fail immediately.
	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := db.PingContext(ctx)

		if err == nil {
			if attempt > 1 {
				logger.Info("warehouse connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("warehouse not available after %v: %w", timeout, err)
		}

		logger.Warn("warehouse not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		time.Sleep(interval)

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, service *report.Service, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()

	withLogging := middleware.LoggingMiddleware(logger)
	mux.Handle("/download", withLogging(downloadHandler(service)))
	mux.Handle("/", withLogging(indexHandler()))

	mux.HandleFunc("/health", healthHandler(db, cfg.Server.HealthCheckTimeout))

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORSEnabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           cfg.Server.CORSMaxAge,
		})(handler)
	}

	if cfg.Server.RateLimitEnabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled: cfg.Server.RateLimitEnabled,
			RPS:     cfg.Server.RateLimitRPS,
			Burst:   cfg.Server.RateLimitBurst,
		})(handler)
	}

	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/", "/download", "/health", "/metrics":
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	tlsEnabled := cfg.Server.TLSMode == "file"
	go func() {
		protocol := "http"
		if tlsEnabled {
			protocol = "https"
		}

		logAttrs := []any{
			slog.String("protocol", protocol),
			slog.String("address", serverAddr),
			slog.String("download_endpoint", "/download"),
			slog.String("health_endpoint", "/health"),
			slog.String("log_level", cfg.Observability.Logging.Level),
			slog.String("log_format", cfg.Observability.Logging.Format),
		}

		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}

		if cfg.Server.RateLimitEnabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
			)
		}

		logAttrs = append(logAttrs, slog.Bool("tls_enabled", tlsEnabled))

		logger.Info("server starting", logAttrs...)

		var err error
		if tlsEnabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler returns an HTTP handler for health checks.
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())

		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "warehouse"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			// Generic message to avoid leaking internal details.
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","warehouse":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","warehouse":"ok"}`)
	}
}
