// Package serverapp owns the lifecycle of the report server: resource
// acquisition, HTTP serving, and ordered shutdown.
package serverapp

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"tin-report/internal/config"
	"tin-report/internal/logging"
	"tin-report/internal/observability"
	"tin-report/internal/report"
)

// App owns runtime resources for the report server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	effectiveDatabase string
	dsnPresent        bool

	meterProvider  *observability.MeterProvider
	reportMetrics  *observability.ReportMetrics
	tracerProvider *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	service *report.Service

	mux     *http.ServeMux
	handler http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	effectiveDatabase, err := cfg.Warehouse.EffectiveDatabaseName()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve warehouse database configuration: %w", err)
	}

	return &App{
		cfg:               cfg,
		logger:            logger,
		effectiveDatabase: effectiveDatabase,
		dsnPresent:        strings.TrimSpace(cfg.Warehouse.ConnectionString) != "",
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}
