package mistral

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content chunk types
const (
	ChunkText     = "text"
	ChunkImageURL = "image_url"
)

// ChatRequest is the body of POST /chat/completions
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message is one chat turn. Content is either a plain string or a list of chunks.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Chunk is one typed content part
type Chunk struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Content holds message content. A single text chunk marshals as a bare string.
type Content []Chunk

// TextContent returns content holding just text
func TextContent(text string) Content {
	return Content{{Type: ChunkText, Text: text}}
}

// MarshalJSON encodes a lone text chunk as a string and anything else as an array
func (c Content) MarshalJSON() ([]byte, error) {
	if len(c) == 1 && c[0].Type == ChunkText {
		return json.Marshal(c[0].Text)
	}
	return json.Marshal([]Chunk(c))
}

// UnmarshalJSON accepts either a string or an array of chunks
func (c *Content) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = TextContent(s)
		return nil
	}

	var chunks []json.RawMessage
	if err := json.Unmarshal(data, &chunks); err != nil {
		return fmt.Errorf("content is neither a string nor a chunk list: %w", err)
	}

	out := make(Content, 0, len(chunks))
	for _, raw := range chunks {
		// image_url may be an object on the way back; only the type and text matter here
		var chunk struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return fmt.Errorf("invalid content chunk: %w", err)
		}
		out = append(out, Chunk{Type: chunk.Type, Text: chunk.Text})
	}
	*c = out
	return nil
}

// Text joins the text chunks with a single space, skipping other chunk types
func (c Content) Text() string {
	parts := make([]string, 0, len(c))
	for _, chunk := range c {
		if chunk.Type == ChunkText && chunk.Text != "" {
			parts = append(parts, chunk.Text)
		}
	}
	return strings.Join(parts, " ")
}

// ChatResponse is the reply to a chat completion
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion candidate
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage reports token counts
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrorResponse is the API's error body
type ErrorResponse struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Detail  string `json:"detail"`
}
