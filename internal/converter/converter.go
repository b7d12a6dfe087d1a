// Package converter turns pasted image bytes into stored files in the configured format.
package converter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/pastemark/internal/apperrors"
	"github.com/platinummonkey/pastemark/internal/exttool"
	"github.com/platinummonkey/pastemark/internal/imageprep"
	"github.com/platinummonkey/pastemark/internal/logger"
	"github.com/platinummonkey/pastemark/internal/metrics"
	"github.com/platinummonkey/pastemark/internal/storage"
)

// filenamePrefix starts every generated filename
const filenamePrefix = "PastedImage_"

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Converter handles image format conversion and storage
type Converter struct {
	format  OutputFormat
	quality int
	store   storage.Storage
	tool    *exttool.Bridge
	sink    storage.Sink
	metrics *metrics.Metrics
	logger  *logger.Logger
	now     func() time.Time
	encode  func(image.Image, imageprep.Format, int) ([]byte, error)
}

// Config holds configuration for the converter
type Config struct {
	// Format is the output format; unrecognized values become webp
	Format OutputFormat

	// Quality is 1-100, higher is better
	Quality int

	// Storage receives converted files
	Storage storage.Storage

	// Tool encodes AVIF; nil means AVIF always falls back to PNG
	Tool *exttool.Bridge

	// Sink optionally uploads saved files
	Sink storage.Sink

	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// New creates a new converter instance
func New(cfg *Config) (*Converter, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("converter requires storage")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	quality := cfg.Quality
	if quality <= 0 {
		quality = imageprep.DefaultQuality
	}
	if quality > 100 {
		quality = 100
	}

	return &Converter{
		format:  ParseFormat(string(cfg.Format)),
		quality: quality,
		store:   cfg.Storage,
		tool:    cfg.Tool,
		sink:    cfg.Sink,
		metrics: cfg.Metrics,
		logger:  log,
		now:     time.Now,
		encode:  imageprep.Encode,
	}, nil
}

// Format returns the configured output format
func (c *Converter) Format() OutputFormat {
	return c.format
}

// Convert encodes raw in the configured format. Undecodable input is an image decode error;
// an encoder or AVIF tool failure yields a PNG artifact instead.
func (c *Converter) Convert(ctx context.Context, raw []byte) (*Artifact, error) {
	log := c.logger.WithOperation("convert").WithFields("format", string(c.format))

	if c.format == FormatAVIF {
		return c.convertAVIF(ctx, raw)
	}

	if c.format == FormatPNG {
		data, err := asPNG(raw)
		if err != nil {
			c.metrics.ObserveConversion(string(c.format), metrics.OutcomeError)
			return nil, err
		}
		c.metrics.ObserveConversion(string(c.format), metrics.OutcomeOK)
		return c.bufferArtifact(FormatPNG, data, false), nil
	}

	img, err := imageprep.Decode(raw)
	if err != nil {
		c.metrics.ObserveConversion(string(c.format), metrics.OutcomeError)
		return nil, err
	}

	data, err := c.encode(img, inProcess[c.format], c.quality)
	if err != nil {
		log.WithError(err).Warn("Encoding failed, keeping the image as PNG")
		png, pngErr := asPNG(raw)
		if pngErr != nil {
			c.metrics.ObserveConversion(string(c.format), metrics.OutcomeError)
			return nil, pngErr
		}
		c.metrics.ObserveConversion(string(c.format), metrics.OutcomeFallback)
		return c.bufferArtifact(FormatPNG, png, true), nil
	}

	c.metrics.ObserveConversion(string(c.format), metrics.OutcomeOK)
	return c.bufferArtifact(c.format, data, false), nil
}

func (c *Converter) bufferArtifact(format OutputFormat, data []byte, fallback bool) *Artifact {
	return &Artifact{
		MimeType:  format.MimeType(),
		Extension: format.Extension(),
		Filename:  RandomFilename(c.now(), format.Extension()),
		Buffer:    data,
		Requested: c.format,
		Fallback:  fallback,
	}
}

// convertAVIF stores a PNG, asks the external tool for an AVIF next to it and keeps
// whichever file is valid afterwards.
func (c *Converter) convertAVIF(ctx context.Context, raw []byte) (*Artifact, error) {
	log := c.logger.WithOperation("convert").WithFields("format", string(FormatAVIF))

	png, err := asPNG(raw)
	if err != nil {
		c.metrics.ObserveConversion(string(FormatAVIF), metrics.OutcomeError)
		return nil, err
	}

	stem := RandomFilename(c.now(), "")

	pngPath, err := c.store.AvailablePath(stem + ".png")
	if err != nil {
		return nil, fmt.Errorf("failed to reserve PNG path: %w", err)
	}
	if _, err := c.store.WriteBinary(pngPath, png); err != nil {
		// releases the reservation and removes any partial write
		_ = c.store.Delete(pngPath)
		return nil, fmt.Errorf("failed to write temporary PNG: %w", err)
	}

	avifPath, err := c.store.AvailablePath(stem + ".avif")
	if err != nil {
		_ = c.store.Delete(pngPath)
		return nil, fmt.Errorf("failed to reserve AVIF path: %w", err)
	}

	var result exttool.Result
	if c.tool == nil {
		err = apperrors.NewExternalToolError("no AVIF tool configured", nil)
	} else {
		result, err = c.tool.Convert(ctx, c.store.FullPath(pngPath), c.store.FullPath(avifPath), c.quality)
	}

	if err != nil || !result.OK {
		log.WithError(err).WithFields("stdout", result.Stdout, "stderr", result.Stderr).
			Warn("AVIF conversion failed, keeping the image as PNG")
		// releases the reservation and removes any partial output
		_ = c.store.Delete(avifPath)
		c.metrics.ObserveConversion(string(FormatAVIF), metrics.OutcomeFallback)

		return &Artifact{
			MimeType:  FormatPNG.MimeType(),
			Extension: FormatPNG.Extension(),
			Filename:  path.Base(pngPath),
			Path:      pngPath,
			Requested: FormatAVIF,
			Fallback:  true,
		}, nil
	}

	if err := c.store.Delete(pngPath); err != nil {
		log.WithError(err).Warn("Failed to remove temporary PNG")
	}
	c.metrics.ObserveConversion(string(FormatAVIF), metrics.OutcomeOK)

	return &Artifact{
		MimeType:  FormatAVIF.MimeType(),
		Extension: FormatAVIF.Extension(),
		Filename:  path.Base(avifPath),
		Path:      avifPath,
		Requested: FormatAVIF,
	}, nil
}

// Save writes a buffer artifact to a free path and, with a sink configured, uploads it.
// A failed upload keeps the local file and returns its path.
func (c *Converter) Save(ctx context.Context, a *Artifact) (SaveResult, error) {
	var stored string

	if a.IsHandle() {
		stored = a.Path
	} else {
		p, err := c.store.AvailablePath(a.Filename)
		if err != nil {
			return SaveResult{}, fmt.Errorf("failed to reserve path: %w", err)
		}
		if stored, err = c.store.WriteBinary(p, a.Buffer); err != nil {
			return SaveResult{}, err
		}
	}

	c.logger.WithFields("path", stored).Info("Image saved")

	if c.sink == nil {
		return SaveResult{Path: stored}, nil
	}

	data := a.Buffer
	if a.IsHandle() {
		var err error
		if data, err = c.store.ReadBinary(stored); err != nil {
			c.logger.WithError(err).Warn("Failed to read stored image for upload")
			return SaveResult{Path: stored}, nil
		}
	}

	url, err := c.sink.Put(ctx, path.Base(stored), data, a.MimeType)
	c.metrics.ObserveSinkUpload(c.sink.Name(), err)
	if err != nil {
		c.logger.WithError(err).WithFields("sink", c.sink.Name()).Warn("Upload failed, keeping local file")
		return SaveResult{Path: stored}, nil
	}

	if err := c.store.Delete(stored); err != nil {
		c.logger.WithError(err).Warn("Failed to remove local copy after upload")
	}

	c.logger.WithFields("url", url, "sink", c.sink.Name()).Info("Image uploaded")
	return SaveResult{URL: url}, nil
}

// ConvertAndSave runs Convert then Save
func (c *Converter) ConvertAndSave(ctx context.Context, raw []byte) (*Artifact, SaveResult, error) {
	a, err := c.Convert(ctx, raw)
	if err != nil {
		return nil, SaveResult{}, err
	}

	res, err := c.Save(ctx, a)
	if err != nil {
		return a, SaveResult{}, err
	}
	return a, res, nil
}

// RandomFilename builds PastedImage_<compact ISO time>_<5 random chars>[.ext]
func RandomFilename(now time.Time, ext string) string {
	utc := now.UTC()
	stamp := fmt.Sprintf("%s%03dZ", utc.Format("20060102T150405"), utc.Nanosecond()/int(time.Millisecond))
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:5]

	name := filenamePrefix + stamp + "_" + suffix
	if ext != "" {
		name += "." + strings.ToLower(ext)
	}
	return name
}

// asPNG returns raw unchanged when it is already a PNG and re-encodes it otherwise
func asPNG(raw []byte) ([]byte, error) {
	if bytes.HasPrefix(raw, pngSignature) {
		if _, err := imageprep.Decode(raw); err != nil {
			return nil, err
		}
		return raw, nil
	}
	return imageprep.Transcode(raw, imageprep.FormatPNG, 0)
}
