package provider

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/platinummonkey/pastemark/internal/imageprep"
	"github.com/platinummonkey/pastemark/internal/registry"
)

// anthropicAdapter talks to the Anthropic messages API
type anthropicAdapter struct {
	session
	client anthropic.Client
}

func newAnthropicAdapter(desc registry.Descriptor, s *settings) Adapter {
	return &anthropicAdapter{session: newSession(desc, s, imageprep.EncodingBase64)}
}

func (a *anthropicAdapter) Init(apiKey string) error {
	if err := ValidateAPIKey(apiKey); err != nil {
		return err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if a.settings.baseURL != "" {
		opts = append(opts, option.WithBaseURL(a.settings.baseURL))
	}

	a.client = anthropic.NewClient(opts...)
	a.ready = true
	return nil
}

func (a *anthropicAdapter) TaskOCR(ctx context.Context) (string, error) {
	if err := a.checkOCR(); err != nil {
		return "", err
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(a.images)+1)
	for _, img := range a.images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, img.Encoded))
	}
	blocks = append(blocks, anthropic.NewTextBlock(OCRPrompt(a.settings.promptMode)))

	a.settings.logger.WithOperation("ocr").Debugw("Calling Anthropic", "images", len(a.images))

	return a.send(ctx, "ocr", anthropic.MessageNewParams{
		Model:       anthropic.Model(a.desc.ModelID),
		MaxTokens:   MaxTokens,
		Temperature: anthropic.Float(OCRParams.Temperature),
		TopP:        anthropic.Float(OCRParams.TopP),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
}

func (a *anthropicAdapter) TaskSummarize(ctx context.Context, text string) (string, error) {
	if err := a.checkSummarize(text); err != nil {
		return "", err
	}

	return a.send(ctx, "summarize", anthropic.MessageNewParams{
		Model:       anthropic.Model(a.desc.ModelID),
		MaxTokens:   MaxTokens,
		Temperature: anthropic.Float(SummarizeParams.Temperature),
		TopP:        anthropic.Float(SummarizeParams.TopP),
		System:      []anthropic.TextBlockParam{{Text: SummarizeInstruction}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(SummarizeUserPrompt(text))),
		},
	})
}

func (a *anthropicAdapter) send(ctx context.Context, task string, params anthropic.MessageNewParams) (string, error) {
	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", a.callFailed(task, err)
	}

	parts := make([]string, 0, len(resp.Content))
	for _, block := range resp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}

	return joinText(parts), nil
}
