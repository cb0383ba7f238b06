package photos

import "time"

// ReferencePhoto identifies an uploaded source image used for sticker
// generation. Rows are immutable once created.
type ReferencePhoto struct {
	ID               uint64  `gorm:"primaryKey" json:"id"`
	UserID           uint64  `gorm:"not null;index" json:"user_id"`
	FileKey          string  `gorm:"size:512;not null" json:"file_key"`
	FileURL          string  `gorm:"type:text;not null" json:"file_url"`
	OriginalFilename *string `gorm:"size:255" json:"original_filename,omitempty"`
	MimeType         *string `gorm:"size:100" json:"mime_type,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName pins the storage table for ReferencePhoto.
func (ReferencePhoto) TableName() string {
	return "reference_photos"
}
