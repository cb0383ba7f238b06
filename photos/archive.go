package photos

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"strings"

	rardecode "github.com/nwaples/rardecode/v2"

	filestore "tgsticker_back/storage"
)

const (
	maxArchiveBytes  int64 = 100 * 1024 * 1024
	maxEntryBytes    int64 = 10 * 1024 * 1024
	maxArchivePhotos       = 20

	archiveFormatZip = "zip"
	archiveFormatRar = "rar"
)

// archivePhoto is one image pulled out of an uploaded archive.
type archivePhoto struct {
	Filename    string
	ContentType string
	Data        []byte
}

// extractPhotoArchive reads an uploaded .zip or .rar archive and returns its
// image entries in archive order. Non-image entries are skipped; an archive
// that yields no images at all is an error.
func extractPhotoArchive(fileHeader *multipart.FileHeader) ([]archivePhoto, error) {
	if fileHeader == nil {
		return nil, errors.New("photos: archive file not provided")
	}

	if fileHeader.Size > 0 && fileHeader.Size > maxArchiveBytes {
		return nil, fmt.Errorf("photos: archive size exceeds %d bytes", maxArchiveBytes)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("photos: open archive: %w", err)
	}
	defer src.Close()

	tmpFile, err := os.CreateTemp("", "photo-archive-*")
	if err != nil {
		return nil, fmt.Errorf("photos: create temp file: %w", err)
	}
	defer func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}()

	written, err := io.Copy(tmpFile, io.LimitReader(src, maxArchiveBytes+1))
	if err != nil {
		return nil, fmt.Errorf("photos: copy archive: %w", err)
	}
	if written > maxArchiveBytes {
		return nil, fmt.Errorf("photos: archive size exceeds %d bytes", maxArchiveBytes)
	}

	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("photos: rewind temp file: %w", err)
	}
	format, err := detectArchiveFormat(tmpFile, fileHeader.Filename)
	if err != nil {
		return nil, err
	}

	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("photos: rewind temp file: %w", err)
	}

	switch format {
	case archiveFormatZip:
		return extractZipPhotos(tmpFile, written)
	case archiveFormatRar:
		return extractRarPhotos(tmpFile.Name())
	default:
		return nil, errors.New("photos: unsupported archive format")
	}
}

func extractZipPhotos(tmpFile *os.File, size int64) ([]archivePhoto, error) {
	reader, err := zip.NewReader(tmpFile, size)
	if err != nil {
		return nil, fmt.Errorf("photos: parse archive: %w", err)
	}

	var photos []archivePhoto
	for _, file := range reader.File {
		sanitized, err := sanitizeArchiveEntry(file.Name)
		if err != nil {
			return nil, err
		}
		if sanitized == "" || file.FileInfo().IsDir() || !isImagePath(strings.ToLower(sanitized)) {
			continue
		}
		if len(photos) >= maxArchivePhotos {
			return nil, fmt.Errorf("photos: archive contains more than %d images", maxArchivePhotos)
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("photos: open entry %s: %w", sanitized, err)
		}
		photo, err := readArchivePhoto(sanitized, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		photos = append(photos, photo)
	}

	if len(photos) == 0 {
		return nil, errors.New("photos: archive contains no images")
	}
	return photos, nil
}

func extractRarPhotos(tmpPath string) ([]archivePhoto, error) {
	f, err := os.Open(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("photos: reopen temp archive: %w", err)
	}
	defer f.Close()

	rr, err := rardecode.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("photos: parse rar archive: %w", err)
	}

	var photos []archivePhoto
	for {
		header, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("photos: read rar entry: %w", err)
		}

		sanitized, err := sanitizeArchiveEntry(header.Name)
		if err != nil {
			return nil, err
		}
		if sanitized == "" || header.IsDir || !isImagePath(strings.ToLower(sanitized)) {
			if !header.IsDir {
				if _, err := io.Copy(io.Discard, rr); err != nil {
					return nil, fmt.Errorf("photos: discard rar entry: %w", err)
				}
			}
			continue
		}
		if len(photos) >= maxArchivePhotos {
			return nil, fmt.Errorf("photos: archive contains more than %d images", maxArchivePhotos)
		}

		photo, err := readArchivePhoto(sanitized, rr)
		if err != nil {
			return nil, err
		}
		photos = append(photos, photo)
	}

	if len(photos) == 0 {
		return nil, errors.New("photos: archive contains no images")
	}
	return photos, nil
}

func readArchivePhoto(relPath string, r io.Reader) (archivePhoto, error) {
	var buffer bytes.Buffer
	written, err := io.Copy(&buffer, io.LimitReader(r, maxEntryBytes+1))
	if err != nil {
		return archivePhoto{}, fmt.Errorf("photos: read entry %s: %w", relPath, err)
	}
	if written > maxEntryBytes {
		return archivePhoto{}, fmt.Errorf("photos: entry %s exceeds %d bytes", relPath, maxEntryBytes)
	}

	data := buffer.Bytes()
	contentType := http.DetectContentType(data)
	if !filestore.IsAllowedImageContent(contentType) {
		return archivePhoto{}, fmt.Errorf("photos: entry %s has unsupported content type %q", relPath, contentType)
	}

	return archivePhoto{
		Filename:    path.Base(relPath),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func detectArchiveFormat(file *os.File, originalName string) (string, error) {
	ext := strings.ToLower(strings.TrimSpace(path.Ext(originalName)))
	switch ext {
	case ".zip":
		return archiveFormatZip, nil
	case ".rar":
		return archiveFormatRar, nil
	}

	var header [8]byte
	n, err := file.ReadAt(header[:], 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("photos: read archive header: %w", err)
	}
	headerSlice := header[:n]

	if len(headerSlice) >= 2 && headerSlice[0] == 0x50 && headerSlice[1] == 0x4b {
		return archiveFormatZip, nil
	}
	if len(headerSlice) >= 6 && bytes.Equal(headerSlice[:6], []byte{0x52, 0x61, 0x72, 0x21, 0x1a, 0x07}) {
		return archiveFormatRar, nil
	}

	if ext != "" {
		return "", fmt.Errorf("photos: unsupported archive format %q", ext)
	}
	return "", errors.New("photos: unsupported archive format, only .zip and .rar are accepted")
}

func sanitizeArchiveEntry(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", nil
	}

	normalized := strings.ReplaceAll(trimmed, "\\", "/")
	normalized = path.Clean(normalized)
	normalized = strings.TrimPrefix(normalized, "./")
	normalized = strings.TrimPrefix(normalized, "/")
	if normalized == "." || normalized == "" {
		return "", nil
	}
	if strings.HasPrefix(normalized, "../") {
		return "", fmt.Errorf("photos: archive entry %q uses parent traversal", name)
	}
	if strings.HasPrefix(strings.ToLower(normalized), "__macosx/") {
		return "", nil
	}
	return normalized, nil
}

func isImagePath(path string) bool {
	switch {
	case strings.HasSuffix(path, ".png"):
		return true
	case strings.HasSuffix(path, ".jpg"), strings.HasSuffix(path, ".jpeg"):
		return true
	case strings.HasSuffix(path, ".webp"):
		return true
	default:
		return false
	}
}
