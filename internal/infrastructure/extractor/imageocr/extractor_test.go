package imageocr

import (
	"bytes"
	"context"
	"errors"
	stdimage "image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

type ocrFake struct {
	mimeType string
	size     int
	text     string
	err      error
}

func (f *ocrFake) Recognize(_ context.Context, image []byte, mimeType string) (string, error) {
	f.mimeType = mimeType
	f.size = len(image)
	return f.text, f.err
}

func writeTIFF(t *testing.T) string {
	t.Helper()
	img := stdimage.NewGray(stdimage.Rect(0, 0, 8, 8))
	img.SetGray(2, 2, color.Gray{Y: 255})
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, img, nil))
	path := filepath.Join(t.TempDir(), "scan.tiff")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestExtractorNormalizesBeforeOCR(t *testing.T) {
	ocr := &ocrFake{text: "  Hemoglobin 13.5 g/dL \n"}
	text, err := NewExtractor(ocr).Extract(context.Background(), writeTIFF(t))

	require.NoError(t, err)
	assert.Equal(t, "Hemoglobin 13.5 g/dL", text)
	assert.Equal(t, "image/png", ocr.mimeType)
	assert.Positive(t, ocr.size)
}

func TestExtractorErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o600))

	_, err := NewExtractor(&ocrFake{}).Extract(context.Background(), bad)
	require.Error(t, err)

	_, err = NewExtractor(&ocrFake{err: errors.New("engine down")}).Extract(context.Background(), writeTIFF(t))
	require.ErrorContains(t, err, "ocr")
}
