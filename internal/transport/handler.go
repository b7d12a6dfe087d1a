// Package transport exposes the workflow over HTTP.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platinummonkey/pastemark/internal/apperrors"
	"github.com/platinummonkey/pastemark/internal/daemon"
	"github.com/platinummonkey/pastemark/internal/gate"
	"github.com/platinummonkey/pastemark/internal/logger"
	"github.com/platinummonkey/pastemark/internal/metrics"
	"github.com/platinummonkey/pastemark/internal/registry"
	"github.com/platinummonkey/pastemark/internal/workflow"
)

// DefaultMaxRequestBodySize bounds uploaded images
const DefaultMaxRequestBodySize int64 = 32 << 20

// imageField is the multipart field carrying images
const imageField = "image"

// Config holds the handler's collaborators
type Config struct {
	Orchestrator *workflow.Orchestrator
	Status       *daemon.StatusTracker
	Metrics      *metrics.Metrics

	MaxRequestBodySize int64
	Version            string
	Logger             *logger.Logger
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Vendor  string `json:"vendor,omitempty"`
}

// ItemResponse is one image's outcome
type ItemResponse struct {
	Index    int    `json:"index"`
	Text     string `json:"text,omitempty"`
	Embed    string `json:"embed,omitempty"`
	Path     string `json:"path,omitempty"`
	URL      string `json:"url,omitempty"`
	Format   string `json:"format,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ResultResponse is the body of the image endpoints
type ResultResponse struct {
	Operation    string         `json:"operation"`
	Model        string         `json:"model,omitempty"`
	Markdown     string         `json:"markdown"`
	SuccessCount int            `json:"success_count"`
	FailureCount int            `json:"failure_count"`
	Items        []ItemResponse `json:"items"`
}

// SummarizeRequest is the body of POST /v1/summarize
type SummarizeRequest struct {
	Text string `json:"text"`
}

// ModelResponse describes one registry entry
type ModelResponse struct {
	Key        string `json:"key"`
	PlatformID string `json:"platform_id"`
	ModelID    string `json:"model_id"`
	Selected   bool   `json:"selected"`
}

type handler struct {
	orch    *workflow.Orchestrator
	status  *daemon.StatusTracker
	version string
	logger  *logger.Logger
}

// NewHandler builds the gin router
func NewHandler(cfg *Config) (http.Handler, error) {
	if cfg == nil || cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	status := cfg.Status
	if status == nil {
		status = daemon.NewStatusTracker(cfg.Orchestrator.Model())
	}

	maxBody := cfg.MaxRequestBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxRequestBodySize
	}

	h := &handler{
		orch:    cfg.Orchestrator,
		status:  status,
		version: cfg.Version,
		logger:  log,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestLogger(log),
		requestSizeLimiter(maxBody),
	)

	r.GET("/health", h.health)
	r.GET("/status", h.statusInfo)
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	v1 := r.Group("/v1")
	v1.GET("/models", h.models)
	v1.POST("/images", h.pasteImages)
	v1.POST("/ocr", h.ocr)
	v1.POST("/summarize", h.summarize)

	return r, nil
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": h.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) statusInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.status.GetStatus())
}

func (h *handler) models(c *gin.Context) {
	selected := h.orch.Model()

	all := registry.All()
	out := make([]ModelResponse, 0, len(all))
	for _, d := range all {
		out = append(out, ModelResponse{
			Key:        d.Key(),
			PlatformID: d.PlatformID,
			ModelID:    d.ModelID,
			Selected:   d.Key() == selected,
		})
	}

	c.JSON(http.StatusOK, gin.H{"models": out})
}

func (h *handler) pasteImages(c *gin.Context) {
	images, err := readImages(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	result, err := h.orch.PasteImages(c.Request.Context(), images)
	h.respondResult(c, result, err)
}

func (h *handler) ocr(c *gin.Context) {
	includeImage, err := parseBool(c.Query("include_image"))
	if err != nil {
		respondError(c, h.logger, apperrors.NewConfigurationError("include_image must be a boolean", err))
		return
	}

	images, err := readImages(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	result, err := h.orch.ConvertToMarkdown(c.Request.Context(), images, includeImage)
	h.respondResult(c, result, err)
}

func (h *handler) summarize(c *gin.Context) {
	var req SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.NewConfigurationError("invalid request format", err))
		return
	}

	summary, err := h.orch.Summarize(c.Request.Context(), req.Text)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"model":   h.orch.Model(),
		"summary": summary,
	})
}

// respondResult answers 200 when at least one item succeeded, otherwise with the first item's error status
func (h *handler) respondResult(c *gin.Context, result *workflow.Result, err error) {
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	body := ResultResponse{
		Operation:    string(result.Operation),
		Model:        result.Model,
		Markdown:     result.Markdown(),
		SuccessCount: result.SuccessCount,
		FailureCount: result.FailureCount,
		Items:        make([]ItemResponse, 0, len(result.Items)),
	}
	for _, item := range result.Items {
		ir := ItemResponse{
			Index:    item.Index,
			Text:     item.Text,
			Embed:    item.Embed,
			Path:     item.Saved.Path,
			URL:      item.Saved.URL,
			Format:   item.Format,
			Fallback: item.Fallback,
		}
		if item.Err != nil {
			ir.Error = item.Err.Error()
		}
		body.Items = append(body.Items, ir)
	}

	code := http.StatusOK
	if result.SuccessCount == 0 {
		code = statusFor(result.Err())
	}
	c.JSON(code, body)
}

// readImages takes every multipart "image" part, or the raw body when the request is not multipart
func readImages(c *gin.Context) ([][]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, bodyError(err)
		}

		files := form.File[imageField]
		images := make([][]byte, 0, len(files))
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				return nil, bodyError(err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, bodyError(err)
			}
			images = append(images, data)
		}
		return images, nil
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, bodyError(err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return [][]byte{data}, nil
}

// errBodyTooLarge maps to 413
var errBodyTooLarge = errors.New("request body too large")

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, tooLarge.Limit)
	}
	return apperrors.NewConfigurationError("failed to read request body", err)
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

// statusFor maps workflow errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, gate.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return apperrors.HTTPStatus(err)
	}
}

func respondError(c *gin.Context, log *logger.Logger, err error) {
	code := statusFor(err)

	log.WithError(err).WithFields(
		"status_code", code,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	).Warn("Request failed")

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: err.Error(),
		Vendor:  apperrors.VendorOf(err),
	})
}

// Middleware

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithFields(
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"ip", c.ClientIP(),
		).Debug("Request handled")
	}
}
