package ports

import (
	"context"
	"io"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

// DocumentUploader is the inbound contract for persisting uploaded files.
type DocumentUploader interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.UploadedFile, error)
}

// QueryService is the inbound contract for classified QA/report queries.
type QueryService interface {
	Handle(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
}

// DocumentIndexer is the inbound contract for (re)indexing files by path.
type DocumentIndexer interface {
	IndexPaths(ctx context.Context, paths []string) (domain.IndexReport, error)
}

// Capabilities is the explicit set of named operations exposed to tool callers.
type Capabilities interface {
	IndexDocuments(ctx context.Context, paths []string) (domain.IndexReport, error)
	AnswerQuestion(ctx context.Context, req domain.QARequest) (string, error)
	ExtractText(ctx context.Context, path, section string) (string, error)
	ExtractTable(ctx context.Context, path string, locator domain.TableLocator) (string, error)
	ExtractImage(ctx context.Context, path string) (domain.ExtractedImage, error)
	Summarize(ctx context.Context, text, length string) (string, error)
	GenerateReport(ctx context.Context, req domain.ReportRequest) (*domain.Report, error)
}
