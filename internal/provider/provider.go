// Package provider unifies the multimodal vendor APIs behind one OCR and summarize contract.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/platinummonkey/pastemark/internal/apperrors"
	"github.com/platinummonkey/pastemark/internal/imageprep"
	"github.com/platinummonkey/pastemark/internal/logger"
	"github.com/platinummonkey/pastemark/internal/registry"
)

// Adapter is one conversion session against a vendor. Queued images live until the adapter is discarded.
type Adapter interface {
	// Init constructs the vendor client for apiKey
	Init(apiKey string) error

	// AddImage preprocesses raw to the adapter's ImageSpec and queues it for TaskOCR
	AddImage(raw []byte) error

	// TaskOCR converts the queued images to Markdown
	TaskOCR(ctx context.Context) (string, error)

	// TaskSummarize condenses text into bullet points
	TaskSummarize(ctx context.Context, text string) (string, error)

	// Vendor is the platform name used in errors and logs
	Vendor() string

	// Descriptor is the model this session targets
	Descriptor() registry.Descriptor

	// ImageSpec is the image shape the vendor accepts
	ImageSpec() imageprep.Spec

	// Close releases the vendor client
	Close() error
}

// Params are vendor generation parameters
type Params struct {
	Temperature float64
	TopP        float64
}

var (
	// OCRParams favor deterministic transcription
	OCRParams = Params{Temperature: 0.1, TopP: 0.9}

	// SummarizeParams allow a little more freedom
	SummarizeParams = Params{Temperature: 0.3, TopP: 0.9}
)

const (
	// MaxTokens bounds vendors that require an explicit output limit
	MaxTokens = 1000

	defaultMaxDimensions = 1000
	defaultMaxPixels     = 1000000
)

var errNotInitialized = errors.New("adapter used before Init")

// settings carries construction options shared by every adapter
type settings struct {
	baseURL    string
	promptMode PromptMode
	logger     *logger.Logger
}

// Option configures an adapter
type Option func(*settings)

// WithBaseURL overrides the vendor API endpoint
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.baseURL = url
	}
}

// WithPromptMode selects the OCR instruction variant
func WithPromptMode(mode PromptMode) Option {
	return func(s *settings) {
		s.promptMode = mode
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(s *settings) {
		s.logger = log
	}
}

type constructor func(desc registry.Descriptor, s *settings) Adapter

// constructors is the closed dispatch table from registry kind to adapter
var constructors = map[registry.Kind]constructor{
	registry.KindAnthropic:    newAnthropicAdapter,
	registry.KindGoogle:       newGoogleAdapter,
	registry.KindMistral:      newMistralAdapter,
	registry.KindOpenAI:       newOpenAIAdapter,
	registry.KindTogetherAI:   newTogetherAIAdapter,
	registry.KindAlibabaCloud: newAlibabaCloudAdapter,
}

// New creates an uninitialized adapter for desc. An unknown kind fails without returning an adapter.
func New(desc registry.Descriptor, opts ...Option) (Adapter, error) {
	ctor, ok := constructors[desc.Kind]
	if !ok {
		return nil, fmt.Errorf("unsupported adapter kind %q for %s", desc.Kind, desc.Key())
	}

	s := &settings{promptMode: PromptStandard}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.WithVendor(desc.PlatformID).WithSettingKey(desc.Key())

	return ctor(desc, s), nil
}

// Supported reports whether kind has an adapter
func Supported(kind registry.Kind) bool {
	_, ok := constructors[kind]
	return ok
}

// ValidateAPIKey rejects keys that are empty or contain whitespace
func ValidateAPIKey(apiKey string) error {
	if apiKey == "" {
		return apperrors.NewConfigurationError("API key is required", nil)
	}
	if strings.IndexFunc(apiKey, unicode.IsSpace) >= 0 {
		return apperrors.NewConfigurationError("API key must not contain whitespace", nil)
	}
	return nil
}

// session holds the state every adapter shares
type session struct {
	desc     registry.Descriptor
	spec     imageprep.Spec
	settings *settings
	images   []*imageprep.Payload
	ready    bool
}

func newSession(desc registry.Descriptor, s *settings, encoding imageprep.Encoding) session {
	return session{
		desc:     desc,
		settings: s,
		spec: imageprep.Spec{
			MaxDimensions: defaultMaxDimensions,
			MaxPixels:     defaultMaxPixels,
			Format:        imageprep.FormatWebP,
			Encoding:      encoding,
		},
	}
}

func (s *session) Vendor() string {
	return s.desc.PlatformID
}

func (s *session) Descriptor() registry.Descriptor {
	return s.desc
}

func (s *session) ImageSpec() imageprep.Spec {
	return s.spec
}

func (s *session) Close() error {
	return nil
}

func (s *session) AddImage(raw []byte) error {
	payload, err := imageprep.Process(raw, s.spec)
	if err != nil {
		return err
	}

	s.images = append(s.images, payload)
	s.settings.logger.Debugw("Queued image", "width", payload.Width, "height", payload.Height, "bytes", len(payload.Bytes))
	return nil
}

// checkOCR validates session state before an OCR call
func (s *session) checkOCR() error {
	if !s.ready {
		return apperrors.NewConfigurationError(errNotInitialized.Error(), errNotInitialized)
	}
	if len(s.images) == 0 {
		return apperrors.NewConfigurationError("no images queued for OCR", nil)
	}
	return nil
}

// checkSummarize validates session state before a summarize call
func (s *session) checkSummarize(text string) error {
	if !s.ready {
		return apperrors.NewConfigurationError(errNotInitialized.Error(), errNotInitialized)
	}
	if strings.TrimSpace(text) == "" {
		return apperrors.NewConfigurationError("nothing to summarize", nil)
	}
	return nil
}

// callFailed wraps a vendor failure with the vendor name
func (s *session) callFailed(task string, err error) error {
	s.settings.logger.WithOperation(task).WithError(err).Warn("Vendor call failed")
	return apperrors.NewProviderCallError(s.Vendor(), err)
}

// noReply reports a response without any choice or candidate. A reply whose parts are all
// non-text is not an error and yields "".
func (s *session) noReply(task string) error {
	return s.callFailed(task, errors.New("response contained no choices"))
}

// joinText concatenates response text parts with a single space
func joinText(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
