package usecase

import (
	"context"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

// CapabilitySet exposes the individual pipeline steps as named operations.
type CapabilitySet struct {
	indexer    *IndexUseCase
	qa         *QAUseCase
	extraction *ExtractionUseCase
	summarizer *Summarizer
	reports    *ReportUseCase
}

var _ ports.Capabilities = (*CapabilitySet)(nil)

func NewCapabilitySet(
	indexer *IndexUseCase,
	qa *QAUseCase,
	extraction *ExtractionUseCase,
	summarizer *Summarizer,
	reports *ReportUseCase,
) *CapabilitySet {
	return &CapabilitySet{
		indexer:    indexer,
		qa:         qa,
		extraction: extraction,
		summarizer: summarizer,
		reports:    reports,
	}
}

func (c *CapabilitySet) IndexDocuments(ctx context.Context, paths []string) (domain.IndexReport, error) {
	return c.indexer.IndexPaths(ctx, paths)
}

// AnswerQuestion indexes any attached documents with the same policy as the
// query flow, then answers.
func (c *CapabilitySet) AnswerQuestion(ctx context.Context, req domain.QARequest) (string, error) {
	if _, err := c.indexer.IndexForQuestion(ctx, req.Documents); err != nil {
		return "", err
	}
	return c.qa.Answer(ctx, req)
}

func (c *CapabilitySet) ExtractText(ctx context.Context, path, section string) (string, error) {
	return c.extraction.ExtractText(ctx, path, section)
}

func (c *CapabilitySet) ExtractTable(ctx context.Context, path string, locator domain.TableLocator) (string, error) {
	return c.extraction.ExtractTable(ctx, path, locator)
}

func (c *CapabilitySet) ExtractImage(ctx context.Context, path string) (domain.ExtractedImage, error) {
	return c.extraction.ExtractImage(ctx, path)
}

func (c *CapabilitySet) Summarize(ctx context.Context, text, length string) (string, error) {
	return c.summarizer.Summarize(ctx, text, length)
}

func (c *CapabilitySet) GenerateReport(ctx context.Context, req domain.ReportRequest) (*domain.Report, error) {
	return c.reports.Generate(ctx, req)
}
