package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.apicore.ai/v1"
	defaultModelID = "nano-banana"
)

// ReferenceImage points the generation model at a source likeness.
type ReferenceImage struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
}

// Client wraps the HTTP calls to the image generation API. The provider is
// expected to accept a prompt plus reference images and respond with a URL
// where the rendered image can be downloaded.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	modelID    string
}

// NewClientFromEnv constructs a Client using environment variables.
//
// Expected variables:
//   - IMAGEGEN_API_KEY: required API key for the provider
//   - IMAGEGEN_BASE_URL: optional override for the API base URL (defaults to defaultBaseURL)
//   - IMAGEGEN_MODEL_ID: optional override for the target model (defaults to defaultModelID)
func NewClientFromEnv() (*Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("IMAGEGEN_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("imagegen: IMAGEGEN_API_KEY environment variable is required")
	}

	baseURL := strings.TrimSpace(os.Getenv("IMAGEGEN_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("imagegen: invalid base URL %q", baseURL)
	}

	modelID := strings.TrimSpace(os.Getenv("IMAGEGEN_MODEL_ID"))
	if modelID == "" {
		modelID = defaultModelID
	}

	httpClient := &http.Client{Timeout: 120 * time.Second}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		modelID:    modelID,
	}, nil
}

// NewClient builds a client against an explicit endpoint. Mainly useful for tests.
func NewClient(baseURL, apiKey, modelID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		modelID:    modelID,
	}
}

// generationRequest represents the request body sent to the provider.
type generationRequest struct {
	Model          string           `json:"model"`
	Prompt         string           `json:"prompt"`
	OriginalImages []ReferenceImage `json:"original_images,omitempty"`
	ResponseFormat string           `json:"response_format"`
}

// generationResponse captures the subset of fields we consume.
type generationResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	URL string `json:"url"`
}

// Generate submits the prompt with the given reference images and returns the
// URL of the rendered image. An empty result URL is treated as a failure.
func (c *Client) Generate(ctx context.Context, prompt string, references []ReferenceImage) (string, error) {
	if c == nil {
		return "", errors.New("imagegen: client is nil")
	}

	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", errors.New("imagegen: prompt cannot be empty")
	}

	payload := generationRequest{
		Model:          c.modelID,
		Prompt:         trimmed,
		ResponseFormat: "url",
	}
	for _, ref := range references {
		refURL := strings.TrimSpace(ref.URL)
		if refURL == "" {
			continue
		}
		mime := strings.TrimSpace(ref.MimeType)
		if mime == "" {
			mime = "image/jpeg"
		}
		payload.OriginalImages = append(payload.OriginalImages, ReferenceImage{URL: refURL, MimeType: mime})
	}

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return "", fmt.Errorf("imagegen: encode request: %w", err)
	}

	endpoint := c.baseURL + "/images/generations"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("imagegen: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("imagegen: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("imagegen: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("imagegen: decode response: %w", err)
	}

	resultURL := strings.TrimSpace(decoded.URL)
	if resultURL == "" && len(decoded.Data) > 0 {
		resultURL = strings.TrimSpace(decoded.Data[0].URL)
	}
	if resultURL == "" {
		return "", errors.New("imagegen: response contains no image URL")
	}

	return resultURL, nil
}
