package imageocr

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/imaging"
)

// Extractor OCRs image files.
type Extractor struct {
	ocr ports.OCREngine
}

var _ ports.TextExtractor = (*Extractor)(nil)

func NewExtractor(ocr ports.OCREngine) *Extractor {
	return &Extractor{ocr: ocr}
}

func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	img, err := imaging.Normalize(raw)
	if err != nil {
		return "", err
	}

	text, err := e.ocr.Recognize(ctx, img.Data, img.MimeType)
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return strings.TrimSpace(text), nil
}
