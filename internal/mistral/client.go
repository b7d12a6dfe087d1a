// Package mistral is a minimal client for the Mistral chat completions API.
package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/platinummonkey/pastemark/internal/logger"
)

const (
	// DefaultEndpoint is the Mistral API base URL
	DefaultEndpoint = "https://api.mistral.ai/v1"
)

// APIError is a non-2xx reply from the API
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("mistral API error (status %d): %s", e.StatusCode, e.Message)
}

// Client is an HTTP client for the Mistral API. Requests are never retried.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithEndpoint sets the API base URL
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		c.endpoint = strings.TrimSuffix(endpoint, "/")
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) ClientOption {
	return func(c *Client) {
		c.logger = log
	}
}

// NewClient creates a new Mistral client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		endpoint: DefaultEndpoint,
		apiKey:   apiKey,
		// no client timeout; calls are bounded by the caller's context only
		httpClient: &http.Client{},
		logger: logger.Get(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Endpoint returns the configured base URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// doRequest performs one JSON request
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, response interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(respBody)
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			switch {
			case errResp.Message != "":
				msg = errResp.Message
			case errResp.Detail != "":
				msg = errResp.Detail
			}
		}
		c.logger.Debugf("Mistral request failed with status %d", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if response != nil {
		if err := json.Unmarshal(respBody, response); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// Chat sends a chat completion request
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.doRequest(ctx, http.MethodPost, "/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Text returns the text of the first choice
func (r *ChatResponse) Text() (string, error) {
	if len(r.Choices) == 0 {
		return "", fmt.Errorf("mistral response contained no choices")
	}
	return r.Choices[0].Message.Content.Text(), nil
}
