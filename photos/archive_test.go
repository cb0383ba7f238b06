package photos

import (
	"archive/zip"
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil))
	return buf.Bytes()
}

func zipArchive(t *testing.T, entries map[string][]byte, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for _, name := range order {
		fw, err := writer.Create(name)
		require.NoError(t, err)
		_, err = fw.Write(entries[name])
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return buf.Bytes()
}

func multipartFile(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fw, err := writer.CreateFormFile("archive", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(&buf, writer.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	files := form.File["archive"]
	require.Len(t, files, 1)
	return files[0]
}

func TestExtractPhotoArchiveZip(t *testing.T) {
	archive := zipArchive(t, map[string][]byte{
		"selfie.png":       pngBytes(t),
		"notes.txt":        []byte("not a photo"),
		"__MACOSX/a.png":   []byte("resource fork junk"),
		"nested/party.jpg": jpegBytes(t),
	}, []string{"selfie.png", "notes.txt", "__MACOSX/a.png", "nested/party.jpg"})

	photos, err := extractPhotoArchive(multipartFile(t, "photos.zip", archive))
	require.NoError(t, err)
	require.Len(t, photos, 2)

	assert.Equal(t, "selfie.png", photos[0].Filename)
	assert.Equal(t, "image/png", photos[0].ContentType)
	assert.Equal(t, "party.jpg", photos[1].Filename)
	assert.Equal(t, "image/jpeg", photos[1].ContentType)
}

func TestExtractPhotoArchiveRejectsTraversal(t *testing.T) {
	archive := zipArchive(t, map[string][]byte{
		"../evil.png": pngBytes(t),
	}, []string{"../evil.png"})

	_, err := extractPhotoArchive(multipartFile(t, "photos.zip", archive))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parent traversal")
}

func TestExtractPhotoArchiveRejectsDisguisedImage(t *testing.T) {
	archive := zipArchive(t, map[string][]byte{
		"fake.png": []byte("plain text pretending to be a png"),
	}, []string{"fake.png"})

	_, err := extractPhotoArchive(multipartFile(t, "photos.zip", archive))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported content type")
}

func TestExtractPhotoArchiveWithoutImages(t *testing.T) {
	archive := zipArchive(t, map[string][]byte{
		"readme.txt": []byte("nothing to see"),
	}, []string{"readme.txt"})

	_, err := extractPhotoArchive(multipartFile(t, "photos.zip", archive))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no images")
}

func TestExtractPhotoArchiveUnsupportedFormat(t *testing.T) {
	_, err := extractPhotoArchive(multipartFile(t, "photos.tar.gz", []byte{0x1f, 0x8b, 0x08, 0x00}))
	assert.Error(t, err)
}

func TestExtractPhotoArchiveDetectsZipByMagic(t *testing.T) {
	archive := zipArchive(t, map[string][]byte{
		"selfie.png": pngBytes(t),
	}, []string{"selfie.png"})

	photos, err := extractPhotoArchive(multipartFile(t, "upload.bin", archive))
	require.NoError(t, err)
	assert.Len(t, photos, 1)
}

func TestSanitizeArchiveEntry(t *testing.T) {
	cases := []struct {
		in      string
		out     string
		wantErr bool
	}{
		{in: "photo.png", out: "photo.png"},
		{in: "./photo.png", out: "photo.png"},
		{in: "dir\\photo.png", out: "dir/photo.png"},
		{in: "/abs/photo.png", out: "abs/photo.png"},
		{in: "__MACOSX/photo.png", out: ""},
		{in: "   ", out: ""},
		{in: "../escape.png", wantErr: true},
		{in: "a/../../escape.png", wantErr: true},
	}
	for _, tc := range cases {
		got, err := sanitizeArchiveEntry(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.out, got, "input %q", tc.in)
	}
}
