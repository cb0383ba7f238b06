package stickers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presetCacheKey     = "stickers:presets"
	presetCacheTTL     = 10 * time.Minute
	presetCacheTimeout = 300 * time.Millisecond
)

// PresetOption is one selectable entry shown by the client UI.
type PresetOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// PresetCatalog lists the preset emotions, styles and body types. Emotions
// outside this list are still accepted by the pipeline as custom labels.
type PresetCatalog struct {
	Emotions  []PresetOption `json:"emotions"`
	Styles    []PresetOption `json:"styles"`
	BodyTypes []PresetOption `json:"body_types"`
}

func buildPresetCatalog() PresetCatalog {
	return PresetCatalog{
		Emotions: []PresetOption{
			{ID: "happy", Label: "Happy"},
			{ID: "sad", Label: "Sad"},
			{ID: "angry", Label: "Angry"},
			{ID: "surprised", Label: "Surprised"},
			{ID: "love", Label: "Love"},
			{ID: "cool", Label: "Cool"},
			{ID: "excited", Label: "Excited"},
			{ID: "tired", Label: "Tired"},
		},
		Styles: []PresetOption{
			{ID: "cute_cartoon", Label: "Cute Cartoon"},
			{ID: "realistic_cartoon", Label: "Realistic Cartoon"},
			{ID: "anime", Label: "Anime"},
			{ID: "chibi", Label: "Chibi"},
		},
		BodyTypes: []PresetOption{
			{ID: "half_body", Label: "Half Body"},
			{ID: "full_body", Label: "Full Body"},
			{ID: "mixed", Label: "Mixed"},
		},
	}
}

// presetCache keeps the serialized catalog in redis so the public presets
// endpoint stays cheap. The catalog is static per build; the cache only
// spares repeated marshalling and keeps the endpoint shape uniform with a
// future dynamic catalog.
type presetCache struct {
	client *redis.Client
}

func newPresetCache(client *redis.Client) *presetCache {
	if client == nil {
		return nil
	}
	return &presetCache{client: client}
}

func (p *presetCache) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), presetCacheTimeout)
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= presetCacheTimeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, presetCacheTimeout)
}

func (p *presetCache) get(ctx context.Context) (*PresetCatalog, error) {
	if p == nil || p.client == nil {
		return nil, redis.Nil
	}

	ctx, cancel := p.cacheContext(ctx)
	defer cancel()

	data, err := p.client.Get(ctx, presetCacheKey).Bytes()
	if err != nil {
		return nil, err
	}

	var catalog PresetCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, err
	}
	return &catalog, nil
}

func (p *presetCache) store(ctx context.Context, catalog PresetCatalog) {
	if p == nil || p.client == nil {
		return
	}

	payload, err := json.Marshal(catalog)
	if err != nil {
		log.Printf("stickers: marshal preset catalog failed: %v", err)
		return
	}

	ctx, cancel := p.cacheContext(ctx)
	defer cancel()

	if err := p.client.Set(ctx, presetCacheKey, payload, presetCacheTTL).Err(); err != nil {
		log.Printf("stickers: store preset catalog cache failed: %v", err)
	}
}
