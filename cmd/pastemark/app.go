package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/pastemark/internal/config"
	"github.com/platinummonkey/pastemark/internal/converter"
	"github.com/platinummonkey/pastemark/internal/exttool"
	"github.com/platinummonkey/pastemark/internal/logger"
	"github.com/platinummonkey/pastemark/internal/metrics"
	"github.com/platinummonkey/pastemark/internal/state"
	"github.com/platinummonkey/pastemark/internal/storage"
	"github.com/platinummonkey/pastemark/internal/vault"
	"github.com/platinummonkey/pastemark/internal/workflow"
)

// app holds the components shared by the commands
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	vault   *vault.Vault
	metrics *metrics.Metrics
	conv    *converter.Converter
}

// loadConfig reads configuration with the command's flags taking precedence
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newApp wires logger, vault, storage and converter from configuration
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(&logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.Get()

	stateStore, err := state.LoadOrCreate(cfg.StateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state: %w", err)
	}

	v, err := vault.Open(stateStore, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewLocalStore(cfg.AttachmentsDir)
	if err != nil {
		return nil, err
	}

	sink, err := newSink(cfg)
	if err != nil {
		return nil, err
	}

	var tool *exttool.Bridge
	if cfg.BinExec != "" {
		tool = exttool.New(&exttool.Config{ProgPath: cfg.BinExec, Logger: log})
	}

	m := metrics.New()
	conv, err := converter.New(&converter.Config{
		Format:  converter.OutputFormat(cfg.ImageFormat),
		Quality: cfg.CompressionLevel,
		Storage: store,
		Tool:    tool,
		Sink:    sink,
		Metrics: m,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create converter: %w", err)
	}

	return &app{cfg: cfg, log: log, vault: v, metrics: m, conv: conv}, nil
}

// newSink builds the configured remote sink, or nil
func newSink(cfg *config.Config) (storage.Sink, error) {
	switch cfg.Sink.Type {
	case config.SinkAzure:
		sink, err := storage.NewAzureSink(storage.AzureConfig{
			AccountName: cfg.Sink.Azure.Account,
			AccountKey:  cfg.Sink.Azure.Key,
			Container:   cfg.Sink.Azure.Container,
			ServiceURL:  cfg.Sink.Azure.ServiceURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create azure sink: %w", err)
		}
		return sink, nil

	case config.SinkHTTP:
		sink, err := storage.NewHTTPSink(storage.HTTPConfig{
			Endpoint: cfg.Sink.HTTP.Endpoint,
			APIKey:   cfg.Sink.HTTP.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create http sink: %w", err)
		}
		return sink, nil

	default:
		return nil, nil
	}
}

// orchestrator builds a workflow orchestrator over the app's components
func (a *app) orchestrator(observer workflow.Observer) (*workflow.Orchestrator, error) {
	orch, err := workflow.New(&workflow.Config{
		Converter: a.conv,
		Vault:     a.vault,
		Model:     a.cfg.AIModel,
		Observer:  observer,
		Metrics:   a.metrics,
		Logger:    a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return orch, nil
}

// readInputs reads each path, "-" meaning stdin
func readInputs(paths []string, stdin io.Reader) ([][]byte, error) {
	inputs := make([][]byte, 0, len(paths))
	for _, p := range paths {
		var (
			data []byte
			err  error
		)
		if p == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(p)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		inputs = append(inputs, data)
	}
	return inputs, nil
}

// printResult writes the Markdown for successful items and reports failures on stderr
func printResult(out, errOut io.Writer, result *workflow.Result) error {
	if md := result.Markdown(); md != "" {
		fmt.Fprintln(out, md)
	}

	for _, item := range result.Items {
		if item.Err != nil {
			fmt.Fprintf(errOut, "image %d: %v\n", item.Index+1, item.Err)
			continue
		}
		if item.Fallback {
			fmt.Fprintf(errOut, "image %d: saved as %s instead of the requested format\n", item.Index+1, item.Format)
		}
	}

	if result.HasFailures() {
		return fmt.Errorf("%d of %d images failed", result.FailureCount, len(result.Items))
	}
	return nil
}
