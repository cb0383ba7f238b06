package stickers

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxArchiveEntryBytes int64 = 20 * 1024 * 1024

// ArchiveEntry names one sticker image to fetch and place in the export.
type ArchiveEntry struct {
	Filename string
	URL      string
}

// Exporter builds downloadable ZIP archives for sticker packs.
type Exporter struct {
	httpClient *http.Client
}

// NewExporter returns an Exporter. A nil http client falls back to a
// timeout-bounded default.
func NewExporter(httpClient *http.Client) *Exporter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Exporter{httpClient: httpClient}
}

// BuildArchive fetches every entry by URL and writes a ZIP containing the
// images under their assigned filenames plus a README.txt usage guide.
// Unlike batch generation, a fetch failure for any entry fails the whole
// export. Entry order is preserved in the archive.
func (e *Exporter) BuildArchive(ctx context.Context, packName string, entries []ArchiveEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("stickers: pack %q has no stickers to export", packName)
	}

	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)

	guide, err := writer.Create("README.txt")
	if err != nil {
		return nil, fmt.Errorf("stickers: create archive guide: %w", err)
	}
	if _, err := io.WriteString(guide, buildUsageGuide(packName, len(entries))); err != nil {
		return nil, fmt.Errorf("stickers: write archive guide: %w", err)
	}

	for _, entry := range entries {
		data, err := e.fetchEntry(ctx, entry.URL)
		if err != nil {
			return nil, fmt.Errorf("stickers: fetch %s for export: %w", entry.Filename, err)
		}

		file, err := writer.Create(entry.Filename)
		if err != nil {
			return nil, fmt.Errorf("stickers: create archive entry %s: %w", entry.Filename, err)
		}
		if _, err := file.Write(data); err != nil {
			return nil, fmt.Errorf("stickers: write archive entry %s: %w", entry.Filename, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("stickers: finalize archive: %w", err)
	}

	return buffer.Bytes(), nil
}

func (e *Exporter) fetchEntry(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxArchiveEntryBytes {
		return nil, fmt.Errorf("entry exceeds %d bytes", maxArchiveEntryBytes)
	}
	return data, nil
}

func buildUsageGuide(packName string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", packName)
	fmt.Fprintf(&b, "%s\n\n", strings.Repeat("=", len(packName)))
	fmt.Fprintf(&b, "This pack contains %d sticker image(s), each 512x512 PNG with a\ntransparent background, ready for Telegram.\n\n", count)
	b.WriteString("How to add these stickers to Telegram:\n")
	b.WriteString("1. Open a chat with @Stickers in Telegram.\n")
	b.WriteString("2. Send /newstickerpack and follow the instructions.\n")
	b.WriteString("3. Upload each PNG file from this archive when prompted.\n")
	b.WriteString("4. Assign an emoji to every sticker.\n")
	b.WriteString("5. Send /publish to make the pack available.\n")
	return b.String()
}
