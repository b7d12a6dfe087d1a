package provider

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/platinummonkey/pastemark/internal/imageprep"
	"github.com/platinummonkey/pastemark/internal/registry"
)

const (
	// TogetherAIBaseURL is TogetherAI's OpenAI-compatible endpoint
	TogetherAIBaseURL = "https://api.together.xyz/v1"

	// AlibabaCloudBaseURL is DashScope's international OpenAI-compatible endpoint
	AlibabaCloudBaseURL = "https://dashscope-intl.aliyuncs.com/compatible-mode/v1"
)

// openAICompatAdapter talks to any OpenAI-compatible chat completions endpoint
type openAICompatAdapter struct {
	session
	defaultBaseURL string
	client         openai.Client
}

func newOpenAIAdapter(desc registry.Descriptor, s *settings) Adapter {
	return &openAICompatAdapter{session: newSession(desc, s, imageprep.EncodingDataURL)}
}

func newTogetherAIAdapter(desc registry.Descriptor, s *settings) Adapter {
	return &openAICompatAdapter{
		session:        newSession(desc, s, imageprep.EncodingDataURL),
		defaultBaseURL: TogetherAIBaseURL,
	}
}

func newAlibabaCloudAdapter(desc registry.Descriptor, s *settings) Adapter {
	return &openAICompatAdapter{
		session:        newSession(desc, s, imageprep.EncodingDataURL),
		defaultBaseURL: AlibabaCloudBaseURL,
	}
}

// BaseURL returns the endpoint the adapter will call; empty means the SDK default
func (o *openAICompatAdapter) BaseURL() string {
	if o.settings.baseURL != "" {
		return o.settings.baseURL
	}
	return o.defaultBaseURL
}

func (o *openAICompatAdapter) Init(apiKey string) error {
	if err := ValidateAPIKey(apiKey); err != nil {
		return err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL := o.BaseURL(); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	o.client = openai.NewClient(opts...)
	o.ready = true
	return nil
}

func (o *openAICompatAdapter) TaskOCR(ctx context.Context) (string, error) {
	if err := o.checkOCR(); err != nil {
		return "", err
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(o.images)+1)
	parts = append(parts, openai.TextContentPart(OCRPrompt(o.settings.promptMode)))
	for _, img := range o.images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: img.Encoded,
		}))
	}

	o.settings.logger.WithOperation("ocr").Debugw("Calling OpenAI-compatible endpoint", "images", len(o.images), "prompt_mode", o.settings.promptMode.String())

	return o.send(ctx, "ocr", openai.ChatCompletionNewParams{
		Model:       o.desc.ModelID,
		Temperature: openai.Float(OCRParams.Temperature),
		TopP:        openai.Float(OCRParams.TopP),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(parts),
		},
	})
}

func (o *openAICompatAdapter) TaskSummarize(ctx context.Context, text string) (string, error) {
	if err := o.checkSummarize(text); err != nil {
		return "", err
	}

	return o.send(ctx, "summarize", openai.ChatCompletionNewParams{
		Model:       o.desc.ModelID,
		Temperature: openai.Float(SummarizeParams.Temperature),
		TopP:        openai.Float(SummarizeParams.TopP),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SummarizeInstruction),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(SummarizeUserPrompt(text)),
			}),
		},
	})
}

func (o *openAICompatAdapter) send(ctx context.Context, task string, params openai.ChatCompletionNewParams) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", o.callFailed(task, err)
	}

	if len(resp.Choices) == 0 {
		return "", o.noReply(task)
	}
	return resp.Choices[0].Message.Content, nil
}
