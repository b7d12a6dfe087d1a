// Package workflow runs the user-facing operations: pasting images, OCR to Markdown and summarizing.
// Every operation holds the process-wide gate for its whole duration.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/pastemark/internal/apperrors"
	"github.com/platinummonkey/pastemark/internal/converter"
	"github.com/platinummonkey/pastemark/internal/gate"
	"github.com/platinummonkey/pastemark/internal/logger"
	"github.com/platinummonkey/pastemark/internal/metrics"
	"github.com/platinummonkey/pastemark/internal/provider"
	"github.com/platinummonkey/pastemark/internal/registry"
	"github.com/platinummonkey/pastemark/internal/vault"
)

const (
	taskOCR       = "ocr"
	taskSummarize = "summarize"
)

// Observer is told about every operation that acquired the gate
type Observer interface {
	Started(operation string, items int)

	// Finished reports the item counts and the operation error, or the first item error
	Finished(operation string, items, failed int, duration time.Duration, err error)
}

// AdapterFactory builds a fresh, uninitialized adapter for one session
type AdapterFactory func(desc registry.Descriptor) (provider.Adapter, error)

// Orchestrator coordinates conversion, credential lookup and vendor calls
type Orchestrator struct {
	converter  *converter.Converter
	vault      *vault.Vault
	gate       *gate.Gate
	model      string
	newAdapter AdapterFactory
	observer   Observer
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

// Config holds configuration for the orchestrator
type Config struct {
	Converter *converter.Converter
	Vault     *vault.Vault

	// Gate defaults to a private gate; share one to serialize several orchestrators
	Gate *gate.Gate

	// Model is the selected platform/model setting key
	Model string

	// NewAdapter overrides adapter construction
	NewAdapter AdapterFactory

	// ProviderOptions are passed to the default adapter factory
	ProviderOptions []provider.Option

	// Observer is optional
	Observer Observer

	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// New creates a new orchestrator
func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Converter == nil {
		return nil, fmt.Errorf("converter is required")
	}
	if cfg.Vault == nil {
		return nil, fmt.Errorf("vault is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	g := cfg.Gate
	if g == nil {
		g = gate.New()
	}

	factory := cfg.NewAdapter
	if factory == nil {
		factory = DefaultAdapterFactory(log, cfg.ProviderOptions...)
	}

	return &Orchestrator{
		converter:  cfg.Converter,
		vault:      cfg.Vault,
		gate:       g,
		model:      strings.TrimSpace(cfg.Model),
		newAdapter: factory,
		observer:   cfg.Observer,
		metrics:    cfg.Metrics,
		logger:     log,
	}, nil
}

// DefaultAdapterFactory builds registry adapters, choosing the terse prompt where the model needs it
func DefaultAdapterFactory(log *logger.Logger, opts ...provider.Option) AdapterFactory {
	return func(desc registry.Descriptor) (provider.Adapter, error) {
		all := append([]provider.Option{
			provider.WithLogger(log),
			provider.WithPromptMode(provider.PromptModeFor(desc.TersePrompt)),
		}, opts...)
		return provider.New(desc, all...)
	}
}

// Model returns the selected platform/model setting key
func (o *Orchestrator) Model() string {
	return o.model
}

// Busy reports whether an operation currently holds the gate
func (o *Orchestrator) Busy() bool {
	return o.gate.Busy()
}

// acquire takes the gate, counting rejections
func (o *Orchestrator) acquire(op Operation) (*gate.Token, error) {
	token, err := o.gate.TryAcquire()
	if err != nil {
		o.metrics.ObserveGateRejection()
		o.logger.WithOperation(string(op)).Warn("Operation rejected, another task is running")
		return nil, err
	}
	return token, nil
}

// PasteImages converts and saves each image concurrently. One failing image does not affect the others.
func (o *Orchestrator) PasteImages(ctx context.Context, images [][]byte) (result *Result, err error) {
	if len(images) == 0 {
		return nil, apperrors.NewConfigurationError("no images to paste", nil)
	}

	token, err := o.acquire(OperationPaste)
	if err != nil {
		return nil, err
	}
	defer token.Release()
	defer o.track(OperationPaste, len(images))(&result, &err)

	log := o.logger.WithOperation(string(OperationPaste))
	log.WithFields("count", len(images)).Info("Pasting images")

	result = NewResult(OperationPaste, len(images))
	start := time.Now()

	o.forEach(images, func(i int, raw []byte) {
		item := &result.Items[i]
		itemStart := time.Now()
		o.saveImage(ctx, raw, item)
		item.Duration = time.Since(itemStart)
	})

	o.finish(log, result, start)
	return result, nil
}

// ConvertToMarkdown runs OCR on each image in its own session. With includeImage the image is also
// saved and embedded above its text.
func (o *Orchestrator) ConvertToMarkdown(ctx context.Context, images [][]byte, includeImage bool) (result *Result, err error) {
	if len(images) == 0 {
		return nil, apperrors.NewConfigurationError("no images to convert", nil)
	}

	token, err := o.acquire(OperationOCR)
	if err != nil {
		return nil, err
	}
	defer token.Release()
	defer o.track(OperationOCR, len(images))(&result, &err)

	desc, apiKey, err := o.resolve()
	if err != nil {
		return nil, err
	}

	log := o.logger.WithOperation(string(OperationOCR)).WithSettingKey(desc.Key())
	log.WithFields("count", len(images), "include_image", includeImage).Info("Converting images to Markdown")

	result = NewResult(OperationOCR, len(images))
	result.Model = desc.Key()
	start := time.Now()

	o.forEach(images, func(i int, raw []byte) {
		item := &result.Items[i]
		itemStart := time.Now()
		defer func() { item.Duration = time.Since(itemStart) }()

		text, err := o.ocr(ctx, desc, apiKey, raw)
		if err != nil {
			log.WithError(err).WithFields("image", i+1).Error("OCR failed")
			item.Err = err
			return
		}
		item.Text = text

		if includeImage {
			o.saveImage(ctx, raw, item)
		}
	})

	o.finish(log, result, start)
	return result, nil
}

// Summarize condenses text with the selected model. Blank text is rejected before the gate is taken.
func (o *Orchestrator) Summarize(ctx context.Context, text string) (summary string, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.NewConfigurationError("no text to summarize", nil)
	}

	token, err := o.acquire(OperationSummarize)
	if err != nil {
		return "", err
	}
	defer token.Release()
	defer o.track(OperationSummarize, 1)(nil, &err)

	desc, apiKey, err := o.resolve()
	if err != nil {
		return "", err
	}

	log := o.logger.WithOperation(string(OperationSummarize)).WithSettingKey(desc.Key())
	log.WithFields("chars", len(text)).Info("Summarizing text")

	adapter, err := o.session(desc, apiKey)
	if err != nil {
		return "", err
	}
	defer adapter.Close()

	start := time.Now()
	summary, err = adapter.TaskSummarize(ctx, text)
	o.metrics.ObserveProviderCall(adapter.Vendor(), taskSummarize, start, err)
	if err != nil {
		log.WithError(err).Error("Summarize failed")
		return "", err
	}

	log.WithFields("duration", time.Since(start)).Info("Summarize completed")
	return summary, nil
}

// track notifies the observer that op started and returns the matching completion callback
func (o *Orchestrator) track(op Operation, items int) func(result **Result, err *error) {
	if o.observer == nil {
		return func(**Result, *error) {}
	}

	start := time.Now()
	o.observer.Started(string(op), items)

	return func(result **Result, err *error) {
		failed, opErr := 0, *err
		switch {
		case opErr != nil:
			failed = items
		case result != nil && *result != nil:
			failed = (*result).FailureCount
			opErr = (*result).Err()
		}
		o.observer.Finished(string(op), items, failed, time.Since(start), opErr)
	}
}

// resolve finds the selected model and its decrypted API key
func (o *Orchestrator) resolve() (registry.Descriptor, string, error) {
	if o.model == "" {
		return registry.Descriptor{}, "", apperrors.NewConfigurationError("no AI model selected", nil)
	}

	desc, ok := registry.LookupKey(o.model)
	if !ok {
		return registry.Descriptor{}, "", apperrors.NewConfigurationError(fmt.Sprintf("AI model %q not found", o.model), nil)
	}

	apiKey, ok := o.vault.Get(desc.Key())
	if !ok {
		return registry.Descriptor{}, "", apperrors.NewConfigurationError(fmt.Sprintf("no API key stored for %s", desc.Key()), nil)
	}

	return desc, apiKey, nil
}

// session builds and initializes a fresh adapter
func (o *Orchestrator) session(desc registry.Descriptor, apiKey string) (provider.Adapter, error) {
	adapter, err := o.newAdapter(desc)
	if err != nil {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("no adapter for %s", desc.Key()), err)
	}
	if err := adapter.Init(apiKey); err != nil {
		return nil, err
	}
	return adapter, nil
}

// ocr runs one image through a dedicated session
func (o *Orchestrator) ocr(ctx context.Context, desc registry.Descriptor, apiKey string, raw []byte) (string, error) {
	adapter, err := o.session(desc, apiKey)
	if err != nil {
		return "", err
	}
	defer adapter.Close()

	if err := adapter.AddImage(raw); err != nil {
		return "", err
	}

	start := time.Now()
	text, err := adapter.TaskOCR(ctx)
	o.metrics.ObserveProviderCall(adapter.Vendor(), taskOCR, start, err)
	return text, err
}

// saveImage converts and stores raw, filling in the item's embed
func (o *Orchestrator) saveImage(ctx context.Context, raw []byte, item *ItemResult) {
	artifact, saved, err := o.converter.ConvertAndSave(ctx, raw)
	if err != nil {
		o.logger.WithError(err).WithFields("image", item.Index+1).Error("Image conversion failed")
		item.Err = err
		return
	}

	item.Saved = saved
	item.Format = artifact.Extension
	item.Fallback = artifact.Fallback
	item.Embed = EmbedMarkdown(saved)

	o.logger.WithFields("image", item.Index+1, "link", saved.Link(), "fallback", artifact.Fallback).
		Infof("Image saved as %s", saved.Link())
}

// forEach runs fn for every image concurrently and waits for all of them
func (o *Orchestrator) forEach(images [][]byte, fn func(i int, raw []byte)) {
	var wg sync.WaitGroup
	for i, raw := range images {
		wg.Add(1)
		go func(i int, raw []byte) {
			defer wg.Done()
			fn(i, raw)
		}(i, raw)
	}
	wg.Wait()
}

func (o *Orchestrator) finish(log *logger.Logger, result *Result, start time.Time) {
	result.tally()
	result.Duration = time.Since(start)

	log.WithFields(
		"successful", result.SuccessCount,
		"failed", result.FailureCount,
		"duration", result.Duration,
	).Info("Operation completed")
}

// EmbedMarkdown returns the editor embed for a saved image. Uploaded images are embedded by URL.
func EmbedMarkdown(saved converter.SaveResult) string {
	if saved.Uploaded() {
		return saved.URL
	}
	if saved.Path == "" {
		return ""
	}
	return "![[" + saved.Path + "]]"
}
