package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/platinummonkey/pastemark/internal/apperrors"
	"github.com/platinummonkey/pastemark/internal/imageprep"
	"github.com/platinummonkey/pastemark/internal/registry"
)

// googleAdapter talks to the Gemini generative language API
type googleAdapter struct {
	session
	client *genai.Client
}

func newGoogleAdapter(desc registry.Descriptor, s *settings) Adapter {
	return &googleAdapter{session: newSession(desc, s, imageprep.EncodingBase64)}
}

func (g *googleAdapter) Init(apiKey string) error {
	if err := ValidateAPIKey(apiKey); err != nil {
		return err
	}

	opts := []option.ClientOption{
		option.WithAPIKey(apiKey),
	}
	if g.settings.baseURL != "" {
		opts = append(opts, option.WithEndpoint(g.settings.baseURL))
	}

	client, err := genai.NewClient(context.Background(), opts...)
	if err != nil {
		return apperrors.NewConfigurationError("failed to create Gemini client", err)
	}

	g.client = client
	g.ready = true
	return nil
}

func (g *googleAdapter) TaskOCR(ctx context.Context) (string, error) {
	if err := g.checkOCR(); err != nil {
		return "", err
	}

	parts := make([]genai.Part, 0, len(g.images)+1)
	parts = append(parts, genai.Text(OCRPrompt(g.settings.promptMode)))
	for _, img := range g.images {
		parts = append(parts, genai.ImageData(imageSubtype(img.MimeType), img.Bytes))
	}

	g.settings.logger.WithOperation("ocr").Debugw("Calling Gemini", "images", len(g.images))

	return g.send(ctx, "ocr", OCRParams, parts...)
}

func (g *googleAdapter) TaskSummarize(ctx context.Context, text string) (string, error) {
	if err := g.checkSummarize(text); err != nil {
		return "", err
	}

	return g.send(ctx, "summarize", SummarizeParams, genai.Text(SummarizeUserPrompt(text)))
}

func (g *googleAdapter) send(ctx context.Context, task string, params Params, parts ...genai.Part) (string, error) {
	model := g.client.GenerativeModel(g.desc.ModelID)
	model.SetTemperature(float32(params.Temperature))
	model.SetTopP(float32(params.TopP))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", g.callFailed(task, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", g.noReply(task)
	}
	return geminiText(resp), nil
}

// Close releases the Gemini client
func (g *googleAdapter) Close() error {
	if g.client == nil {
		return nil
	}
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("failed to close Gemini client: %w", err)
	}
	return nil
}

// geminiText joins the text parts of the first candidate
func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			texts = append(texts, string(txt))
		}
	}
	return joinText(texts)
}

// imageSubtype turns "image/webp" into "webp"
func imageSubtype(mimeType string) string {
	return strings.TrimPrefix(mimeType, "image/")
}
