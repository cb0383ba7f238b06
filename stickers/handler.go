package stickers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tgsticker_back/authorization"
	"tgsticker_back/imagegen"
	"tgsticker_back/photos"
	filestore "tgsticker_back/storage"
)

const maxEmotionsPerPack = 20

// Module bundles the sticker generation pipeline with its collaborators.
type Module struct {
	db        *gorm.DB
	store     *filestore.ObjectStorage
	photos    *photos.Module
	generator *Generator
	exporter  *Exporter
	presets   *presetCache
}

type previewRequest struct {
	ReferencePhotoID uint64 `json:"reference_photo_id" binding:"required"`
	Emotion          string `json:"emotion" binding:"required"`
	Style            string `json:"style"`
	BodyType         string `json:"body_type"`
}

type generatePackRequest struct {
	Name             string   `json:"name" binding:"required"`
	ReferencePhotoID uint64   `json:"reference_photo_id" binding:"required"`
	Emotions         []string `json:"emotions" binding:"required"`
	Style            string   `json:"style"`
	BodyType         string   `json:"body_type"`
}

type packDTO struct {
	ID                uint64   `json:"id"`
	Name              string   `json:"name"`
	Description       *string  `json:"description,omitempty"`
	ReferencePhotoID  *uint64  `json:"reference_photo_id,omitempty"`
	Style             string   `json:"style"`
	BodyType          string   `json:"body_type"`
	RequestedEmotions []string `json:"requested_emotions,omitempty"`
	StickerCount      int64    `json:"sticker_count"`
	CreatedAt         int64    `json:"created_at"`
	UpdatedAt         int64    `json:"updated_at"`
}

type stickerDTO struct {
	ID        uint64  `json:"id"`
	PackID    uint64  `json:"pack_id"`
	FileURL   string  `json:"file_url"`
	Emotion   string  `json:"emotion"`
	Prompt    *string `json:"prompt,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// RegisterRoutes wires the /stickers endpoints. The presets endpoint is
// public; everything else requires an authenticated user.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, db *gorm.DB, store *filestore.ObjectStorage, photosModule *photos.Module, genClient *imagegen.Client, redisClient *redis.Client) (*Module, error) {
	if db == nil {
		return nil, errors.New("stickers: database handle is required")
	}
	if photosModule == nil {
		return nil, errors.New("stickers: photos module is required")
	}

	if err := db.AutoMigrate(&StickerPack{}, &Sticker{}); err != nil {
		return nil, fmt.Errorf("stickers: migrate tables: %w", err)
	}

	module := &Module{
		db:        db,
		store:     store,
		photos:    photosModule,
		generator: NewGenerator(genClient, nil),
		exporter:  NewExporter(nil),
		presets:   newPresetCache(redisClient),
	}

	group := router.Group("/stickers")
	group.GET("/presets", module.handlePresets)

	secured := group.Group("")
	if guard != nil {
		secured.Use(guard.RequireAuthenticated())
	} else {
		secured.Use(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization middleware missing"})
		})
	}
	secured.POST("/preview", module.handlePreview)
	secured.POST("/packs", module.handleGeneratePack)
	secured.GET("/packs", module.handleListPacks)
	secured.GET("/packs/:id", module.handleGetPack)
	secured.DELETE("/packs/:id", module.handleDeletePack)
	secured.POST("/packs/:id/download", module.handleDownloadPack)
	secured.DELETE("/packs/:id/stickers/:stickerId", module.handleDeleteSticker)

	return module, nil
}

func (m *Module) handlePresets(c *gin.Context) {
	ctx := c.Request.Context()
	if cached, err := m.presets.get(ctx); err == nil && cached != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	catalog := buildPresetCatalog()
	m.presets.store(ctx, catalog)
	c.JSON(http.StatusOK, catalog)
}

func (m *Module) handlePreview(c *gin.Context) {
	userID := authorization.CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if strings.TrimSpace(req.Emotion) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emotion is required"})
		return
	}

	photo, ok := m.fetchOwnedPhoto(c, userID, req.ReferencePhotoID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	sticker, err := m.generator.GenerateSticker(ctx, photo.FileURL, req.Emotion, req.Style, req.BodyType)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to generate sticker", "details": err.Error()})
		return
	}

	key := fmt.Sprintf("%d/previews/%s-%s.png", userID, sanitizeLabel(req.Emotion), uuidChunk())
	url, err := m.store.Put(ctx, key, sticker.ImageBuffer, sticker.MimeType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store preview sticker"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url, "emotion": req.Emotion})
}

func (m *Module) handleGeneratePack(c *gin.Context) {
	userID := authorization.CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	var req generatePackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pack name is required"})
		return
	}

	emotions := make([]string, 0, len(req.Emotions))
	for _, emotion := range req.Emotions {
		if trimmed := strings.TrimSpace(emotion); trimmed != "" {
			emotions = append(emotions, trimmed)
		}
	}
	if len(emotions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one emotion is required"})
		return
	}
	if len(emotions) > maxEmotionsPerPack {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at most %d emotions per pack", maxEmotionsPerPack)})
		return
	}

	photo, ok := m.fetchOwnedPhoto(c, userID, req.ReferencePhotoID)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	requested, err := json.Marshal(emotions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode requested emotions"})
		return
	}

	description := fmt.Sprintf("Sticker pack with %d emotions", len(emotions))
	pack := StickerPack{
		UserID:            userID,
		Name:              name,
		Description:       &description,
		ReferencePhotoID:  &photo.ID,
		Style:             normalizeStyle(req.Style),
		BodyType:          normalizeBodyType(req.BodyType),
		RequestedEmotions: datatypes.JSON(requested),
	}
	if err := m.db.WithContext(ctx).Create(&pack).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create sticker pack"})
		return
	}

	batch := m.generator.GenerateBatch(ctx, photo.FileURL, emotions, pack.Style, pack.BodyType)

	saved := make([]stickerDTO, 0, len(batch.Order))
	failed := make(map[string]string, len(batch.Failed))
	for emotion, cause := range batch.Failed {
		failed[emotion] = cause.Error()
	}

	for _, emotion := range batch.Order {
		generated := batch.Generated[emotion]
		key := fmt.Sprintf("%d/stickers/%d/%s-%s.png", userID, pack.ID, sanitizeLabel(emotion), uuidChunk())
		url, err := m.store.Put(ctx, key, generated.ImageBuffer, generated.MimeType)
		if err != nil {
			log.Printf("stickers: store sticker for emotion %q failed: %v", emotion, err)
			failed[emotion] = "failed to store generated sticker"
			continue
		}

		prompt := generated.Prompt
		sticker := Sticker{
			PackID:  pack.ID,
			FileKey: key,
			FileURL: url,
			Emotion: emotion,
			Prompt:  &prompt,
		}
		if err := m.db.WithContext(ctx).Create(&sticker).Error; err != nil {
			log.Printf("stickers: save sticker for emotion %q failed: %v", emotion, err)
			_ = m.store.Remove(ctx, url)
			failed[emotion] = "failed to save generated sticker"
			continue
		}
		saved = append(saved, toStickerDTO(&sticker))
	}

	c.JSON(http.StatusCreated, gin.H{
		"pack":     m.toPackDTO(&pack, int64(len(saved))),
		"stickers": saved,
		"failed":   failed,
	})
}

func (m *Module) handleListPacks(c *gin.Context) {
	userID := authorization.CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx := c.Request.Context()
	var packs []StickerPack
	if err := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&packs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sticker packs"})
		return
	}

	result := make([]packDTO, 0, len(packs))
	for i := range packs {
		var count int64
		if err := m.db.WithContext(ctx).Model(&Sticker{}).Where("pack_id = ?", packs[i].ID).Count(&count).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count stickers"})
			return
		}
		result = append(result, m.toPackDTO(&packs[i], count))
	}

	c.JSON(http.StatusOK, gin.H{"packs": result})
}

func (m *Module) handleGetPack(c *gin.Context) {
	userID := authorization.CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	pack, ok := m.fetchOwnedPack(c, userID)
	if !ok {
		return
	}

	stickers, err := m.packStickers(c, pack.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stickers"})
		return
	}

	result := make([]stickerDTO, 0, len(stickers))
	for i := range stickers {
		result = append(result, toStickerDTO(&stickers[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"pack":     m.toPackDTO(pack, int64(len(result))),
		"stickers": result,
	})
}

func (m *Module) handleDeletePack(c *gin.Context) {
	userID := authorization.CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	pack, ok := m.fetchOwnedPack(c, userID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	stickers, err := m.packStickers(c, pack.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stickers"})
		return
	}

	// Children first, then the pack row, so a failure never orphans stickers.
	if err := m.db.WithContext(ctx).Where("pack_id = ?", pack.ID).Delete(&Sticker{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete stickers"})
		return
	}
	if err := m.db.WithContext(ctx).Delete(&StickerPack{}, pack.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete sticker pack"})
		return
	}

	for i := range stickers {
		if err := m.store.Remove(ctx, stickers[i].FileURL); err != nil {
			log.Printf("stickers: remove stored object for sticker %d failed: %v", stickers[i].ID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (m *Module) handleDeleteSticker(c *gin.Context) {
	userID := authorization.CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("stickerId")), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sticker id"})
		return
	}

	ctx := c.Request.Context()
	var sticker Sticker
	if err := m.db.WithContext(ctx).First(&sticker, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "sticker not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sticker"})
		}
		return
	}

	// TODO: verify the sticker's pack belongs to the caller before deleting.
	if err := m.db.WithContext(ctx).Delete(&Sticker{}, sticker.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete sticker"})
		return
	}

	if err := m.store.Remove(ctx, sticker.FileURL); err != nil {
		log.Printf("stickers: remove stored object for sticker %d failed: %v", sticker.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (m *Module) handleDownloadPack(c *gin.Context) {
	userID := authorization.CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	pack, ok := m.fetchOwnedPack(c, userID)
	if !ok {
		return
	}

	stickers, err := m.packStickers(c, pack.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stickers"})
		return
	}
	if len(stickers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pack has no stickers to download"})
		return
	}

	entries := make([]ArchiveEntry, 0, len(stickers))
	for i := range stickers {
		entries = append(entries, ArchiveEntry{
			Filename: fmt.Sprintf("%d_%s.png", i+1, sanitizeLabel(stickers[i].Emotion)),
			URL:      stickers[i].FileURL,
		})
	}

	ctx := c.Request.Context()
	archive, err := m.exporter.BuildArchive(ctx, pack.Name, entries)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to build pack archive", "details": err.Error()})
		return
	}

	key := fmt.Sprintf("%d/downloads/%d-%s.zip", userID, pack.ID, uuidChunk())
	url, err := m.store.Put(ctx, key, archive, "application/zip")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store pack archive"})
		return
	}

	if signed, err := m.store.PresignedURL(ctx, url, 0); err == nil && signed != "" {
		url = signed
	}

	c.JSON(http.StatusOK, gin.H{"download_url": url})
}

func (m *Module) fetchOwnedPhoto(c *gin.Context, userID, photoID uint64) (*photos.ReferencePhoto, bool) {
	photo, err := m.photos.FindByID(c, photoID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reference photo not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reference photo"})
		}
		return nil, false
	}
	if photo.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "you do not have permission to use this reference photo"})
		return nil, false
	}
	return photo, true
}

func (m *Module) fetchOwnedPack(c *gin.Context, userID uint64) (*StickerPack, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pack id"})
		return nil, false
	}

	var pack StickerPack
	if err := m.db.WithContext(c.Request.Context()).First(&pack, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "sticker pack not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sticker pack"})
		}
		return nil, false
	}

	if pack.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "you do not have permission to access this pack"})
		return nil, false
	}

	return &pack, true
}

func (m *Module) packStickers(c *gin.Context, packID uint64) ([]Sticker, error) {
	var stickers []Sticker
	err := m.db.WithContext(c.Request.Context()).
		Where("pack_id = ?", packID).
		Order("id ASC").
		Find(&stickers).Error
	return stickers, err
}

func (m *Module) toPackDTO(pack *StickerPack, stickerCount int64) packDTO {
	dto := packDTO{
		ID:               pack.ID,
		Name:             pack.Name,
		Description:      pack.Description,
		ReferencePhotoID: pack.ReferencePhotoID,
		Style:            pack.Style,
		BodyType:         pack.BodyType,
		StickerCount:     stickerCount,
		CreatedAt:        pack.CreatedAt.Unix(),
		UpdatedAt:        pack.UpdatedAt.Unix(),
	}
	if len(pack.RequestedEmotions) > 0 {
		var requested []string
		if err := json.Unmarshal(pack.RequestedEmotions, &requested); err == nil {
			dto.RequestedEmotions = requested
		}
	}
	return dto
}

func toStickerDTO(sticker *Sticker) stickerDTO {
	return stickerDTO{
		ID:        sticker.ID,
		PackID:    sticker.PackID,
		FileURL:   sticker.FileURL,
		Emotion:   sticker.Emotion,
		Prompt:    sticker.Prompt,
		CreatedAt: sticker.CreatedAt.Unix(),
	}
}

// sanitizeLabel makes an emotion label safe for object keys and filenames.
func sanitizeLabel(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "emotion"
	}
	return b.String()
}

func uuidChunk() string {
	id := uuid.NewString()
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
