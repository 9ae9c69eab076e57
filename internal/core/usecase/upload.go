package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

type UploadUseCase struct {
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

// NewUploadUseCase builds the upload flow. queue may be nil when upload
// events are disabled.
func NewUploadUseCase(storage ports.ObjectStorage, queue ports.MessageQueue) *UploadUseCase {
	return &UploadUseCase{
		storage: storage,
		queue:   queue,
	}
}

// Upload stores the file under a collision-free key and announces it to the
// indexing worker when a queue is configured.
func (uc *UploadUseCase) Upload(ctx context.Context, filename string, body io.Reader) (*domain.UploadedFile, error) {
	key := uuid.NewString() + "_" + sanitizeFilename(filename)

	path, err := uc.storage.Save(ctx, key, body)
	if err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	if uc.queue != nil {
		if err := uc.queue.PublishDocumentUploaded(ctx, path); err != nil {
			// The next query indexes the file on demand.
			slog.Warn("upload_event_publish_failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	return &domain.UploadedFile{Filename: filename, Path: path}, nil
}

const (
	maxFilenameBytes = 120
	fallbackFilename = "document.bin"
)

// sanitizeFilename drops any directory part, replaces each run of characters
// outside [A-Za-z0-9._-] with one underscore and caps the length while
// keeping the extension.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	pending := false
	for _, r := range name {
		if r < utf8.RuneSelf && (r == '.' || r == '-' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pending {
				b.WriteByte('_')
				pending = false
			}
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	if pending {
		b.WriteByte('_')
	}
	clean := b.String()
	if strings.Trim(clean, "._") == "" {
		return fallbackFilename
	}

	if len(clean) > maxFilenameBytes {
		ext := path.Ext(clean)
		if len(ext) >= maxFilenameBytes {
			ext = ""
		}
		clean = clean[:maxFilenameBytes-len(ext)] + ext
	}
	return clean
}
