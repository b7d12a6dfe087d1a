package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// Sink uploads a converted image and returns its public URL
type Sink interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Name() string
}

// AzureConfig holds Azure Blob Storage settings
type AzureConfig struct {
	AccountName string
	AccountKey  string
	Container   string

	// ServiceURL overrides https://<account>.blob.core.windows.net
	ServiceURL string
}

// AzureSink uploads to an Azure Blob Storage container
type AzureSink struct {
	client    *azblob.Client
	container string
}

// NewAzureSink creates a sink authenticated with a shared key
func NewAzureSink(cfg AzureConfig) (*AzureSink, error) {
	if cfg.AccountName == "" || cfg.AccountKey == "" || cfg.Container == "" {
		return nil, fmt.Errorf("azure sink requires account, key and container")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}

	serviceURL := cfg.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	}

	// uploads are not retried; the caller falls back to the local file
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}

	return &AzureSink{client: client, container: cfg.Container}, nil
}

// Name identifies the sink in logs
func (s *AzureSink) Name() string {
	return "azure"
}

// Put uploads data as a block blob named key
func (s *AzureSink) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.UploadBuffer(ctx, s.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("azure upload failed: %w", err)
	}

	return strings.TrimSuffix(s.client.URL(), "/") + "/" + s.container + "/" + url.PathEscape(key), nil
}

// HTTPConfig holds image-host upload settings
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// HTTPSink posts images as multipart form uploads to an image host
type HTTPSink struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// uploadResponse is the image host's JSON reply
type uploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Links   struct {
		Direct string `json:"direct"`
	} `json:"links"`
}

// NewHTTPSink creates an image-host sink
func NewHTTPSink(cfg HTTPConfig) (*HTTPSink, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("http sink requires an endpoint")
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	return &HTTPSink{endpoint: cfg.Endpoint, apiKey: cfg.APIKey, client: client}, nil
}

// Name identifies the sink in logs
func (s *HTTPSink) Name() string {
	return "http"
}

// Put uploads data in the "image" form field and returns the direct link
func (s *HTTPSink) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", key)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write image to form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Image-Content-Type", contentType)
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("image host returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var uploadResp uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}

	if !uploadResp.Success || uploadResp.Links.Direct == "" {
		return "", fmt.Errorf("image host reported an error: %s", uploadResp.Message)
	}

	return uploadResp.Links.Direct, nil
}
