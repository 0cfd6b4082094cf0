package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"tin-report/internal/dbexec"
	"tin-report/internal/export"
	"tin-report/internal/filter"
	"tin-report/internal/report"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, reportMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	a.logger.Info("connecting to warehouse",
		slog.String("host", a.cfg.Warehouse.Host),
		slog.Int("port", a.cfg.Warehouse.Port),
		slog.String("database", a.effectiveDatabase),
		slog.String("table", a.cfg.Warehouse.Table),
		slog.Bool("dsn_present", a.dsnPresent),
	)

	db, dbStatsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	cleanup.push("warehouse connection", func(_ context.Context) error {
		if dbStatsReg != nil {
			if err := dbStatsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	if err := configureDatabase(ctx, a.cfg, a.logger, db, a.effectiveDatabase, a.dsnPresent); err != nil {
		return fmt.Errorf("failed to verify warehouse connection: %w", err)
	}

	policy := filter.Policy{TINDigitsOnly: a.cfg.Validation.TINDigitsOnly}
	service := &report.Service{
		Executor: dbexec.NewStandardExecutor(db),
		Table:    a.cfg.Warehouse.Table,
		Policy:   policy,
		Exporter: &export.Exporter{SheetName: a.cfg.Export.SheetName},
		Metrics:  reportMetrics,
	}

	mux := buildRouter(a.cfg, a.logger, db, service, meterProvider)
	handler := wrapHTTPHandler(a.cfg, a.logger, mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.reportMetrics = reportMetrics
	a.tracerProvider = tracerProvider
	a.db = db
	a.dbStatsReg = dbStatsReg
	a.service = service
	a.mux = mux
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
