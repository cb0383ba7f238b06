package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSendsPromptAndReferences(t *testing.T) {
	var captured struct {
		Model          string           `json:"model"`
		Prompt         string           `json:"prompt"`
		OriginalImages []ReferenceImage `json:"original_images"`
		ResponseFormat string           `json:"response_format"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/images/generations", r.URL.Path)
		require.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"url": "https://img.test/out.png"}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1", "key-123", "nano-banana", server.Client())
	url, err := client.Generate(context.Background(), "  draw a cat  ", []ReferenceImage{
		{URL: "https://photos.test/ref.jpg"},
		{URL: "   "},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://img.test/out.png", url)
	assert.Equal(t, "nano-banana", captured.Model)
	assert.Equal(t, "draw a cat", captured.Prompt)
	assert.Equal(t, "url", captured.ResponseFormat)
	require.Len(t, captured.OriginalImages, 1)
	assert.Equal(t, "https://photos.test/ref.jpg", captured.OriginalImages[0].URL)
	assert.Equal(t, "image/jpeg", captured.OriginalImages[0].MimeType)
}

func TestGenerateFallsBackToTopLevelURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"url": "https://img.test/direct.png"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "model", server.Client())
	url, err := client.Generate(context.Background(), "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://img.test/direct.png", url)
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	client := NewClient("https://api.test", "key", "model", nil)
	_, err := client.Generate(context.Background(), "   ", nil)
	assert.Error(t, err)
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "model", server.Client())
	_, err := client.Generate(context.Background(), "prompt", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGenerateRejectsEmptyResultURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]string{}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "model", server.Client())
	_, err := client.Generate(context.Background(), "prompt", nil)
	assert.Error(t, err)
}
