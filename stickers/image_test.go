package stickers

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill := color.RGBA{R: 200, G: 40, B: 40, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeSticker(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func alphaAt(img image.Image, x, y int) uint32 {
	_, _, _, a := img.At(x, y).RGBA()
	return a
}

func TestNormalizeStickerWideImage(t *testing.T) {
	out, err := normalizeSticker(encodePNG(t, 800, 400))
	require.NoError(t, err)

	img := decodeSticker(t, out)
	assert.Equal(t, image.Rect(0, 0, 512, 512), img.Bounds())

	// Contain fit leaves transparent bands above and below a wide image.
	assert.Zero(t, alphaAt(img, 256, 5))
	assert.Zero(t, alphaAt(img, 256, 506))
	assert.NotZero(t, alphaAt(img, 256, 256))
}

func TestNormalizeStickerTallImage(t *testing.T) {
	out, err := normalizeSticker(encodePNG(t, 300, 600))
	require.NoError(t, err)

	img := decodeSticker(t, out)
	assert.Equal(t, image.Rect(0, 0, 512, 512), img.Bounds())

	assert.Zero(t, alphaAt(img, 5, 256))
	assert.Zero(t, alphaAt(img, 506, 256))
	assert.NotZero(t, alphaAt(img, 256, 256))
}

func TestNormalizeStickerSquareImageFillsCanvas(t *testing.T) {
	out, err := normalizeSticker(encodePNG(t, 100, 100))
	require.NoError(t, err)

	img := decodeSticker(t, out)
	assert.Equal(t, image.Rect(0, 0, 512, 512), img.Bounds())
	assert.NotZero(t, alphaAt(img, 10, 10))
	assert.NotZero(t, alphaAt(img, 500, 500))
}

func TestNormalizeStickerAcceptsJPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			src.Set(x, y, color.RGBA{R: 10, G: 120, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, nil))

	out, err := normalizeSticker(buf.Bytes())
	require.NoError(t, err)

	img := decodeSticker(t, out)
	assert.Equal(t, image.Rect(0, 0, 512, 512), img.Bounds())
}

func TestNormalizeStickerRejectsGarbage(t *testing.T) {
	_, err := normalizeSticker([]byte("definitely not an image"))
	assert.Error(t, err)
}
