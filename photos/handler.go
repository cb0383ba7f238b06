package photos

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"tgsticker_back/authorization"
	filestore "tgsticker_back/storage"
)

// Module exposes the reference photo endpoints.
type Module struct {
	db    *gorm.DB
	store *filestore.ObjectStorage
}

type photoDTO struct {
	ID               uint64  `json:"id"`
	FileURL          string  `json:"file_url"`
	OriginalFilename *string `json:"original_filename,omitempty"`
	MimeType         *string `json:"mime_type,omitempty"`
	CreatedAt        int64   `json:"created_at"`
}

// RegisterRoutes wires the /photos endpoints. All routes require an
// authenticated user.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, db *gorm.DB, store *filestore.ObjectStorage) (*Module, error) {
	if db == nil {
		return nil, errors.New("photos: database handle is required")
	}

	if err := db.AutoMigrate(&ReferencePhoto{}); err != nil {
		return nil, fmt.Errorf("photos: migrate tables: %w", err)
	}

	module := &Module{db: db, store: store}

	group := router.Group("/photos")
	if guard != nil {
		group.Use(guard.RequireAuthenticated())
	} else {
		group.Use(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization middleware missing"})
		})
	}
	group.POST("", module.handleUpload)
	group.POST("/archive", module.handleUploadArchive)
	group.GET("", module.handleList)
	group.DELETE("/:id", module.handleDelete)

	return module, nil
}

func (m *Module) handleUpload(c *gin.Context) {
	userID := authorization.CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	file, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}

	ctx := c.Request.Context()
	key, publicURL, err := m.store.UploadImage(ctx, file, fmt.Sprintf("%d", userID), "references")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	photo := ReferencePhoto{
		UserID:  userID,
		FileKey: key,
		FileURL: publicURL,
	}
	if name := strings.TrimSpace(file.Filename); name != "" {
		photo.OriginalFilename = &name
	}
	if mime := strings.TrimSpace(file.Header.Get("Content-Type")); mime != "" {
		photo.MimeType = &mime
	}

	if err := m.db.WithContext(ctx).Create(&photo).Error; err != nil {
		_ = m.store.Remove(ctx, publicURL)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save reference photo"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"photo": toPhotoDTO(&photo)})
}

func (m *Module) handleUploadArchive(c *gin.Context) {
	userID := authorization.CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	file, err := c.FormFile("archive")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "archive file is required"})
		return
	}

	entries, err := extractPhotoArchive(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	saved := make([]photoDTO, 0, len(entries))
	for _, entry := range entries {
		key := fmt.Sprintf("%d/references/%s%s", userID, uuid.NewString(), filestore.ImageExtension(entry.Filename, entry.ContentType))
		publicURL, err := m.store.Put(ctx, key, entry.Data, entry.ContentType)
		if err != nil {
			log.Printf("photos: upload archive entry %s failed: %v", entry.Filename, err)
			continue
		}

		photo := ReferencePhoto{
			UserID:  userID,
			FileKey: key,
			FileURL: publicURL,
		}
		name := entry.Filename
		photo.OriginalFilename = &name
		mime := entry.ContentType
		photo.MimeType = &mime

		if err := m.db.WithContext(ctx).Create(&photo).Error; err != nil {
			_ = m.store.Remove(ctx, publicURL)
			log.Printf("photos: save archive entry %s failed: %v", entry.Filename, err)
			continue
		}
		saved = append(saved, toPhotoDTO(&photo))
	}

	if len(saved) == 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store any image from the archive"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"photos": saved, "imported": len(saved), "skipped": len(entries) - len(saved)})
}

func (m *Module) handleList(c *gin.Context) {
	userID := authorization.CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	var records []ReferencePhoto
	if err := m.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reference photos"})
		return
	}

	result := make([]photoDTO, 0, len(records))
	for i := range records {
		result = append(result, toPhotoDTO(&records[i]))
	}

	c.JSON(http.StatusOK, gin.H{"photos": result})
}

func (m *Module) handleDelete(c *gin.Context) {
	userID := authorization.CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	photo, err := m.fetchOwnedPhoto(c, userID)
	if err != nil {
		return
	}

	ctx := c.Request.Context()
	if err := m.db.WithContext(ctx).Delete(&ReferencePhoto{}, photo.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete reference photo"})
		return
	}

	if err := m.store.Remove(ctx, photo.FileURL); err != nil {
		log.Printf("photos: remove stored object for photo %d failed: %v", photo.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// FindByID loads a reference photo by primary key, for use by other modules.
func (m *Module) FindByID(c *gin.Context, id uint64) (*ReferencePhoto, error) {
	var photo ReferencePhoto
	if err := m.db.WithContext(c.Request.Context()).First(&photo, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &photo, nil
}

func (m *Module) fetchOwnedPhoto(c *gin.Context, userID uint64) (*ReferencePhoto, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return nil, err
	}

	var photo ReferencePhoto
	if err := m.db.WithContext(c.Request.Context()).First(&photo, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reference photo not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reference photo"})
		}
		return nil, err
	}

	if photo.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "you do not have permission to use this reference photo"})
		return nil, errors.New("photos: forbidden")
	}

	return &photo, nil
}

func toPhotoDTO(photo *ReferencePhoto) photoDTO {
	return photoDTO{
		ID:               photo.ID,
		FileURL:          photo.FileURL,
		OriginalFilename: photo.OriginalFilename,
		MimeType:         photo.MimeType,
		CreatedAt:        photo.CreatedAt.Unix(),
	}
}
