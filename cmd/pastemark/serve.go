package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/pastemark/internal/daemon"
	"github.com/platinummonkey/pastemark/internal/transport"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run pastemark as a long-running HTTP service for editor integrations.

Endpoints:
  GET  /health         liveness
  GET  /status         current and last operation
  GET  /metrics        Prometheus metrics
  GET  /v1/models      supported models
  POST /v1/images      convert and save images (raw body or multipart "image" parts)
  POST /v1/ocr         OCR images to Markdown (?include_image=true to embed them)
  POST /v1/summarize   summarize {"text": "..."}

Only one AI operation runs at a time; concurrent requests get 409 Conflict.
The server shuts down gracefully on SIGINT or SIGTERM.

Examples:
  pastemark serve --addr 127.0.0.1:8787
  pastemark serve --pid-file /run/pastemark.pid --log-format json`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address, overrides serve.addr (default 127.0.0.1:8787)")
	serveCmd.Flags().String("pid-file", "", "PID file path")
	serveCmd.Flags().Int64("max-body", transport.DefaultMaxRequestBodySize, "maximum request body size in bytes")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		a.cfg.Serve.Addr = addr
	}
	pidFile, _ := cmd.Flags().GetString("pid-file")
	maxBody, _ := cmd.Flags().GetInt64("max-body")

	status := daemon.NewStatusTracker(a.cfg.AIModel)
	orch, err := a.orchestrator(status)
	if err != nil {
		return err
	}

	handler, err := transport.NewHandler(&transport.Config{
		Orchestrator:       orch,
		Status:             status,
		Metrics:            a.metrics,
		MaxRequestBodySize: maxBody,
		Version:            Version,
		Logger:             a.log,
	})
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	d, err := daemon.New(&daemon.Config{
		Handler: handler,
		Addr:    a.cfg.Serve.Addr,
		PIDFile: pidFile,
		Logger:  a.log,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	a.log.WithFields(
		"addr", a.cfg.Serve.Addr,
		"model", a.cfg.AIModel,
		"format", a.cfg.ImageFormat,
	).Info("Starting server")

	if err := d.Run(context.Background()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	a.log.Info("Server shutdown complete")
	return nil
}
