package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

// ReportUseCase collects requested sections from documents and renders them.
//
// For every section the documents are scanned in request order and the first
// one that yields content wins; matches are never merged across documents.
// For text sections a document whose text actually contains the section name
// beats one that would only contribute its full text.
type ReportUseCase struct {
	extraction *ExtractionUseCase
	summarizer *Summarizer
	renderer   ports.ReportRenderer
}

func NewReportUseCase(extraction *ExtractionUseCase, summarizer *Summarizer, renderer ports.ReportRenderer) *ReportUseCase {
	return &ReportUseCase{
		extraction: extraction,
		summarizer: summarizer,
		renderer:   renderer,
	}
}

func (uc *ReportUseCase) Generate(ctx context.Context, req domain.ReportRequest) (*domain.Report, error) {
	sections, err := uc.CollectSections(ctx, req)
	if err != nil {
		return nil, err
	}

	report, err := uc.renderer.Render(ctx, sections)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	report.Filename = domain.ReportFilename
	report.Sections = sections
	return report, nil
}

// CollectSections builds the ordered sections map. Sections no document can
// fill are left out.
func (uc *ReportUseCase) CollectSections(ctx context.Context, req domain.ReportRequest) ([]domain.Section, error) {
	titles := req.Sections
	if len(titles) == 0 {
		titles = parseRequestedSections(req.Query)
	}

	sections := make([]domain.Section, 0, len(titles))
	for _, title := range titles {
		if err := ctx.Err(); err != nil {
			return nil, domain.WrapError(domain.ErrCancelled, "collect sections", err)
		}

		section, ok := uc.firstMatch(ctx, title, req.Documents)
		if !ok {
			slog.Info("report_section_empty", slog.String("section", title))
			continue
		}

		if strings.Contains(strings.ToLower(title), "summary") && section.Content.Kind != domain.ContentKindImage {
			summary, err := uc.summarizer.Summarize(ctx, section.Content.Text, "")
			if err != nil {
				return nil, fmt.Errorf("summarize section %q: %w", title, err)
			}
			section.Content = domain.SectionContent{Kind: domain.ContentKindText, Text: summary}
		}
		sections = append(sections, section)
	}
	return sections, nil
}

func (uc *ReportUseCase) firstMatch(ctx context.Context, title string, documents []string) (domain.Section, bool) {
	lower := strings.ToLower(title)
	var fallback *domain.Section

	for _, path := range documents {
		var (
			content domain.SectionContent
			matched = true
			err     error
		)

		switch {
		case strings.Contains(lower, "table"):
			var table string
			table, err = uc.extraction.ExtractTable(ctx, path, domain.TableLocator{})
			content = domain.TextContent(table)
		case strings.Contains(lower, "image"):
			var img domain.ExtractedImage
			img, err = uc.extraction.ExtractImage(ctx, path)
			content = domain.ImageContent(img.Text, img.Path)
		default:
			var text string
			text, matched, err = uc.extraction.ExtractSection(ctx, path, title)
			content = domain.TextContent(text)
		}

		if err != nil {
			slog.Warn("report_extraction_failed",
				slog.String("section", title),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		if content.IsEmpty() {
			continue
		}

		section := domain.Section{Title: title, Source: path, Content: content}
		if matched {
			return section, true
		}
		if fallback == nil {
			fallback = &section
		}
	}

	if fallback != nil {
		return *fallback, true
	}
	return domain.Section{}, false
}
