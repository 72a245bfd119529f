package imagesource

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Sniff decodes the image header and reports its format and dimensions.
func Sniff(data []byte) (string, image.Config, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", image.Config{}, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return format, cfg, nil
}

// Downscale shrinks an image to fit within maxSize (width or height) keeping aspect ratio.
// Images already within bounds are returned untouched and the second return value is false.
func Downscale(data []byte, maxSize int) ([]byte, bool, error) {
	_, cfg, err := Sniff(data)
	if err != nil {
		return nil, false, err
	}
	if maxSize <= 0 || (cfg.Width <= maxSize && cfg.Height <= maxSize) {
		return data, false, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
	} else {
		newHeight = maxSize
		newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90}); err != nil {
		return nil, false, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), true, nil
}
