package stickers

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// stickerSize is the canvas Telegram expects for static stickers.
const stickerSize = 512

// normalizeSticker decodes the generated image and re-renders it onto a
// 512x512 fully transparent canvas using a contain fit: the image is scaled
// to the largest size that preserves its aspect ratio, centered, and the
// remaining border stays transparent. The result is always PNG.
func normalizeSticker(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode generated image: %w", err)
	}

	bounds := src.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	if srcW <= 0 || srcH <= 0 {
		return nil, fmt.Errorf("generated image has empty bounds %v", bounds)
	}

	var dstW, dstH int
	if srcW >= srcH {
		dstW = stickerSize
		dstH = srcH * stickerSize / srcW
	} else {
		dstH = stickerSize
		dstW = srcW * stickerSize / srcH
	}
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	offsetX := (stickerSize - dstW) / 2
	offsetY := (stickerSize - dstH) / 2

	canvas := image.NewRGBA(image.Rect(0, 0, stickerSize, stickerSize))
	target := image.Rect(offsetX, offsetY, offsetX+dstW, offsetY+dstH)
	draw.CatmullRom.Scale(canvas, target, src, bounds, draw.Over, nil)

	var out bytes.Buffer
	if err := png.Encode(&out, canvas); err != nil {
		return nil, fmt.Errorf("encode sticker png: %w", err)
	}
	return out.Bytes(), nil
}
