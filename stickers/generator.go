package stickers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"tgsticker_back/imagegen"
)

const maxGeneratedImageBytes int64 = 20 * 1024 * 1024

// Generated carries one rendered sticker ready for storage.
type Generated struct {
	ImageBuffer []byte
	MimeType    string
	Prompt      string
}

// BatchResult reports both sides of a batch run. A failed emotion never
// aborts the rest of the batch; callers decide whether the shortfall is
// worth surfacing.
type BatchResult struct {
	// Generated maps emotion label to its rendered sticker.
	Generated map[string]Generated
	// Failed maps emotion label to the error that sank it.
	Failed map[string]error
	// Order preserves the requested emotion order for the generated subset.
	Order []string
}

// Generator renders stickers through the external image generation API.
type Generator struct {
	client     *imagegen.Client
	httpClient *http.Client
}

// NewGenerator wraps the given imagegen client. The http client is used to
// download rendered images and falls back to a timeout-bounded default.
func NewGenerator(client *imagegen.Client, httpClient *http.Client) *Generator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Generator{client: client, httpClient: httpClient}
}

// GenerateSticker produces a single 512x512 transparent PNG sticker from the
// reference image. Every failure mode (API error, missing result URL,
// download failure, decode failure) surfaces as one uniform error wrapping
// the cause; no retry is attempted here.
func (g *Generator) GenerateSticker(ctx context.Context, referenceImageURL, emotion, style, bodyType string) (Generated, error) {
	if g == nil || g.client == nil {
		return Generated{}, errors.New("stickers: image generation is not configured")
	}
	if strings.TrimSpace(referenceImageURL) == "" {
		return Generated{}, errors.New("stickers: reference image URL is required")
	}

	style = normalizeStyle(style)
	bodyType = normalizeBodyType(bodyType)
	prompt := BuildPrompt(emotion, style, bodyType)

	log.Printf("stickers: generating sticker emotion=%s style=%s body_type=%s", emotion, style, bodyType)

	resultURL, err := g.client.Generate(ctx, prompt, []imagegen.ReferenceImage{
		{URL: referenceImageURL, MimeType: "image/jpeg"},
	})
	if err != nil {
		return Generated{}, fmt.Errorf("stickers: generate sticker: %w", err)
	}

	raw, err := g.fetchImage(ctx, resultURL)
	if err != nil {
		return Generated{}, fmt.Errorf("stickers: generate sticker: %w", err)
	}

	normalized, err := normalizeSticker(raw)
	if err != nil {
		return Generated{}, fmt.Errorf("stickers: generate sticker: %w", err)
	}

	return Generated{
		ImageBuffer: normalized,
		MimeType:    "image/png",
		Prompt:      prompt,
	}, nil
}

// GenerateBatch renders one sticker per requested emotion, strictly in
// order and one upstream call at a time so the generation API is never
// hammered with parallel requests. Per-emotion failures are logged and
// recorded in the result instead of aborting the remaining emotions.
func (g *Generator) GenerateBatch(ctx context.Context, referenceImageURL string, emotions []string, style, bodyType string) BatchResult {
	result := BatchResult{
		Generated: make(map[string]Generated, len(emotions)),
		Failed:    make(map[string]error),
	}

	for _, emotion := range emotions {
		sticker, err := g.GenerateSticker(ctx, referenceImageURL, emotion, style, bodyType)
		if err != nil {
			log.Printf("stickers: batch emotion %q failed: %v", emotion, err)
			result.Failed[emotion] = err
			continue
		}
		result.Generated[emotion] = sticker
		result.Order = append(result.Order, emotion)
	}

	return result
}

func (g *Generator) fetchImage(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download generated image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download generated image: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxGeneratedImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read generated image: %w", err)
	}
	if int64(len(data)) > maxGeneratedImageBytes {
		return nil, fmt.Errorf("generated image exceeds %d bytes", maxGeneratedImageBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("generated image is empty")
	}

	return data, nil
}
