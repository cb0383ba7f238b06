package stickers

import (
	"time"

	"gorm.io/datatypes"
)

// StickerPack is a named collection of generated stickers owned by one user.
type StickerPack struct {
	ID                uint64         `gorm:"primaryKey" json:"id"`
	UserID            uint64         `gorm:"not null;index" json:"user_id"`
	Name              string         `gorm:"size:255;not null" json:"name"`
	Description       *string        `gorm:"type:text" json:"description,omitempty"`
	ReferencePhotoID  *uint64        `json:"reference_photo_id,omitempty"`
	Style             string         `gorm:"size:50;not null;default:'cute_cartoon'" json:"style"`
	BodyType          string         `gorm:"size:50;not null;default:'half_body'" json:"body_type"`
	RequestedEmotions datatypes.JSON `gorm:"type:json" json:"requested_emotions,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TableName pins the storage table for StickerPack.
func (StickerPack) TableName() string {
	return "sticker_packs"
}

// Sticker is one generated image belonging to a pack. The emotion label is
// free text: preset ids and user-defined custom strings share the column.
type Sticker struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	PackID    uint64    `gorm:"not null;index" json:"pack_id"`
	FileKey   string    `gorm:"size:512;not null" json:"file_key"`
	FileURL   string    `gorm:"type:text;not null" json:"file_url"`
	Emotion   string    `gorm:"size:100;not null" json:"emotion"`
	Prompt    *string   `gorm:"type:text" json:"prompt,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName pins the storage table for Sticker.
func (Sticker) TableName() string {
	return "stickers"
}
