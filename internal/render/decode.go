package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
	"math"

	_ "golang.org/x/image/webp" // register WebP
)

// MaxDimension bounds the width and height of every render target and of
// any image decoded for drawing.
const MaxDimension = 4096

// ErrImageTooLarge is returned for images wider or taller than MaxDimension.
var ErrImageTooLarge = errors.New("image too large")

// DecodeImage decodes an uploaded image in any registered format. The header
// is checked first so oversized images are rejected before their pixels are
// allocated.
func DecodeImage(data []byte) (image.Image, string, error) {
	w, h, err := ImageSize(data)
	if err != nil {
		return nil, "", err
	}
	if w > MaxDimension || h > MaxDimension {
		return nil, "", fmt.Errorf("decode image: %w: %dx%d exceeds %d", ErrImageTooLarge, w, h, MaxDimension)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// ImageSize reports the pixel dimensions of an encoded image without
// decoding its pixels.
func ImageSize(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// FitSize scales width × height down, keeping the aspect ratio, until both
// fit within MaxDimension. Sizes already within bounds are unchanged.
func FitSize(width, height int) (int, int) {
	if width <= MaxDimension && height <= MaxDimension {
		return width, height
	}
	scale := math.Min(float64(MaxDimension)/float64(width), float64(MaxDimension)/float64(height))
	w := max(1, int(math.Round(float64(width)*scale)))
	h := max(1, int(math.Round(float64(height)*scale)))
	return min(w, MaxDimension), min(h, MaxDimension)
}

func checkSize(width, height int) error {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("invalid size %dx%d", width, height)
	}
	return nil
}
