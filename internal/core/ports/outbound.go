package ports

import (
	"context"
	"io"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

// ObjectStorage stores uploaded source files and returns their server-side path.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes upload events.
type MessageQueue interface {
	PublishDocumentUploaded(ctx context.Context, path string) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a file of one format.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// PageTextReader returns the text of a single 1-based PDF page.
type PageTextReader interface {
	PageText(ctx context.Context, path string, page int) (string, error)
}

// SheetReader returns the raw rows of a workbook sheet; an empty name selects the first sheet.
type SheetReader interface {
	SheetRows(ctx context.Context, path, sheet string) ([][]string, error)
}

// OCREngine recognizes text in an encoded image.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into overlapping chunks.
type Chunker interface {
	Split(text string) []string
}

// VectorIndex is a persistent similarity index over embedded chunks.
// Load reports whether a persisted index already exists.
type VectorIndex interface {
	Load(ctx context.Context) (bool, error)
	Create(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Add(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Save(ctx context.Context) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error)
}

// TextGenerator runs a prompt through the generative model.
type TextGenerator interface {
	GenerateFromPrompt(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error)
}

// IntentClassifier returns the raw classifier label for a query.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, query string) (string, error)
}

// SessionStore keeps per-session conversation history.
type SessionStore interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error)
	Append(ctx context.Context, sessionID string, turns ...domain.Turn) error
	Close(ctx context.Context, sessionID string) error
}

// ReportRenderer lays sections out into a paginated document.
type ReportRenderer interface {
	Render(ctx context.Context, sections []domain.Section) (*domain.Report, error)
}
