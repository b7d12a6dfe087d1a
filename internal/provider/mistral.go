package provider

import (
	"context"

	"github.com/platinummonkey/pastemark/internal/imageprep"
	"github.com/platinummonkey/pastemark/internal/mistral"
	"github.com/platinummonkey/pastemark/internal/registry"
)

// mistralAdapter talks to the Mistral chat API
type mistralAdapter struct {
	session
	client *mistral.Client
}

func newMistralAdapter(desc registry.Descriptor, s *settings) Adapter {
	return &mistralAdapter{session: newSession(desc, s, imageprep.EncodingDataURL)}
}

func (m *mistralAdapter) Init(apiKey string) error {
	if err := ValidateAPIKey(apiKey); err != nil {
		return err
	}

	opts := []mistral.ClientOption{mistral.WithLogger(m.settings.logger)}
	if m.settings.baseURL != "" {
		opts = append(opts, mistral.WithEndpoint(m.settings.baseURL))
	}

	m.client = mistral.NewClient(apiKey, opts...)
	m.ready = true
	return nil
}

func (m *mistralAdapter) TaskOCR(ctx context.Context) (string, error) {
	if err := m.checkOCR(); err != nil {
		return "", err
	}

	content := mistral.Content{{Type: mistral.ChunkText, Text: OCRPrompt(m.settings.promptMode)}}
	for _, img := range m.images {
		content = append(content, mistral.Chunk{Type: mistral.ChunkImageURL, ImageURL: img.Encoded})
	}

	m.settings.logger.WithOperation("ocr").Debugw("Calling Mistral", "images", len(m.images))

	return m.send(ctx, "ocr", OCRParams, content)
}

func (m *mistralAdapter) TaskSummarize(ctx context.Context, text string) (string, error) {
	if err := m.checkSummarize(text); err != nil {
		return "", err
	}

	return m.send(ctx, "summarize", SummarizeParams, mistral.TextContent(SummarizeUserPrompt(text)))
}

func (m *mistralAdapter) send(ctx context.Context, task string, params Params, content mistral.Content) (string, error) {
	temperature, topP := params.Temperature, params.TopP

	resp, err := m.client.Chat(ctx, &mistral.ChatRequest{
		Model:       m.desc.ModelID,
		Temperature: &temperature,
		TopP:        &topP,
		Messages: []mistral.Message{
			{Role: mistral.RoleUser, Content: content},
		},
	})
	if err != nil {
		return "", m.callFailed(task, err)
	}

	text, err := resp.Text()
	if err != nil {
		return "", m.callFailed(task, err)
	}
	return text, nil
}
