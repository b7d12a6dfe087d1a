// Package daemon runs the HTTP surface as a long-running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platinummonkey/pastemark/internal/logger"
)

// DefaultShutdownTimeout bounds how long in-flight requests get after a shutdown signal
const DefaultShutdownTimeout = 30 * time.Second

// Daemon serves a handler until a signal arrives or its context ends
type Daemon struct {
	handler         http.Handler
	addr            string
	pidFile         string
	shutdownTimeout time.Duration
	logger          *logger.Logger
	httpServer      *http.Server
	ready           chan string
}

// Config holds configuration for the daemon
type Config struct {
	Handler         http.Handler
	Addr            string        // Listen address (e.g. "127.0.0.1:8787")
	PIDFile         string        // Optional PID file path
	ShutdownTimeout time.Duration // Default: 30 seconds
	Logger          *logger.Logger
}

// New creates a new daemon instance
func New(cfg *Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	timeout := cfg.ShutdownTimeout
	if timeout == 0 {
		timeout = DefaultShutdownTimeout
	}

	return &Daemon{
		handler:         cfg.Handler,
		addr:            cfg.Addr,
		pidFile:         cfg.PIDFile,
		shutdownTimeout: timeout,
		logger:          log,
		ready:           make(chan string, 1),
	}, nil
}

// Ready yields the bound address once the listener is open
func (d *Daemon) Ready() <-chan string {
	return d.ready
}

// Run serves until SIGINT/SIGTERM or ctx is done, then shuts down gracefully
func (d *Daemon) Run(ctx context.Context) error {
	if d.pidFile != "" {
		if err := d.writePIDFile(); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer d.removePIDFile()
	}

	listener, err := net.Listen("tcp", d.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.addr, err)
	}

	d.httpServer = &http.Server{
		Handler:           d.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- d.httpServer.Serve(listener)
	}()

	bound := listener.Addr().String()
	d.logger.WithFields("addr", bound).Info("HTTP server listening")
	d.ready <- bound

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)

	case <-ctx.Done():
		d.logger.Info("Shutting down, waiting for in-flight requests")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout)
	defer cancel()

	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		d.logger.WithError(err).Warn("Failed to shutdown HTTP server gracefully")
		return fmt.Errorf("shutdown failed: %w", err)
	}

	d.logger.Info("HTTP server stopped")
	return nil
}

// writePIDFile writes the current process ID to the configured PID file
func (d *Daemon) writePIDFile() error {
	pid := os.Getpid()
	content := fmt.Sprintf("%d\n", pid)

	if err := os.WriteFile(d.pidFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.logger.WithFields("pid", pid, "file", d.pidFile).Info("Wrote PID file")
	return nil
}

// removePIDFile removes the PID file
func (d *Daemon) removePIDFile() {
	if d.pidFile == "" {
		return
	}

	if err := os.Remove(d.pidFile); err != nil {
		d.logger.WithFields("file", d.pidFile, "error", err).Warn("Failed to remove PID file")
	}
}
