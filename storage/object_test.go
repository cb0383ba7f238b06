package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAllowedImageContent(t *testing.T) {
	assert.True(t, IsAllowedImageContent("image/png"))
	assert.True(t, IsAllowedImageContent("IMAGE/JPEG"))
	assert.True(t, IsAllowedImageContent(" image/webp "))
	assert.False(t, IsAllowedImageContent("image/gif"))
	assert.False(t, IsAllowedImageContent("application/pdf"))
	assert.False(t, IsAllowedImageContent(""))
}

func TestImageExtension(t *testing.T) {
	assert.Equal(t, ".png", ImageExtension("upload", "image/png"))
	assert.Equal(t, ".jpg", ImageExtension("selfie.jpeg", "image/jpeg"))
	assert.Equal(t, ".webp", ImageExtension("", "image/webp"))
	assert.Equal(t, ".heic", ImageExtension("photo.HEIC", "application/octet-stream"))
	assert.Equal(t, ".bin", ImageExtension("", ""))
}

func TestObjectNameFromURL(t *testing.T) {
	store := &ObjectStorage{bucket: "stickers", publicURL: "https://cdn.test"}

	name, ok := store.objectNameFromURL("https://cdn.test/stickers/1/references/a.png")
	assert.True(t, ok)
	assert.Equal(t, "1/references/a.png", name)

	name, ok = store.objectNameFromURL("stickers/1/previews/b.png")
	assert.True(t, ok)
	assert.Equal(t, "1/previews/b.png", name)

	name, ok = store.objectNameFromURL("/1/downloads/c.zip")
	assert.True(t, ok)
	assert.Equal(t, "1/downloads/c.zip", name)

	_, ok = store.objectNameFromURL("https://elsewhere.test/other/d.png")
	assert.False(t, ok)

	_, ok = store.objectNameFromURL("   ")
	assert.False(t, ok)
}
