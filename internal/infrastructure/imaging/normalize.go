package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/draw"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Normalized is an image re-encoded (when needed) into a format that OCR
// engines and the PDF writer both accept.
type Normalized struct {
	Data     []byte
	Format   string
	MimeType string
	Width    int
	Height   int
}

// Normalize validates data as an image. PNG and JPEG pass through unchanged;
// every other decodable format (bmp, tiff, webp, gif) is re-encoded as PNG.
func Normalize(data []byte) (*Normalized, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}

	switch format {
	case "png":
		if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("decode png: %w", err)
		}
		return &Normalized{Data: data, Format: "png", MimeType: "image/png", Width: cfg.Width, Height: cfg.Height}, nil
	case "jpeg":
		if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("decode jpeg: %w", err)
		}
		return &Normalized{Data: data, Format: "jpeg", MimeType: "image/jpeg", Width: cfg.Width, Height: cfg.Height}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("re-encode %s as png: %w", format, err)
	}
	return &Normalized{Data: buf.Bytes(), Format: "png", MimeType: "image/png", Width: cfg.Width, Height: cfg.Height}, nil
}

// FlattenPNG decodes any supported image and re-encodes it as a non-interlaced
// 8-bit RGBA PNG, the only PNG flavour the PDF writer embeds reliably.
func FlattenPNG(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	flat := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(flat, flat.Bounds(), img, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, flat); err != nil {
		return nil, fmt.Errorf("re-encode %s as png: %w", format, err)
	}
	return buf.Bytes(), nil
}
