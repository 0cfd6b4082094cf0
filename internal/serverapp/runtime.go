package serverapp

import (
	"fmt"
	"log/slog"
	"os"
)

// Start launches the HTTP server goroutine. Init must have completed.
// Repeat calls return the channel from the first start.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if a.started {
		return a.serverErrors, nil
	}

	a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
	a.started = true
	return a.serverErrors, nil
}

// WaitForStop blocks until a shutdown signal arrives or the server
// goroutine reports a failure, whichever comes first. A nil serverErrors
// falls back to the channel produced by Start.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (string, error) {
	if stop == nil {
		return "", fmt.Errorf("stop channel is nil")
	}
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}

	// Receiving from a nil serverErrors blocks forever, which leaves the
	// signal case as the only way out when the server was never started.
	select {
	case sig := <-stop:
		a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		return "signal", nil
	case err := <-serverErrors:
		if err == nil {
			return "server_error", fmt.Errorf("server stopped unexpectedly")
		}
		a.logger.Error("server failed", slog.String("error", err.Error()))
		return "server_error", err
	}
}
