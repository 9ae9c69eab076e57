package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

// ExtractionUseCase pulls exact sections, tables and images out of a single document.
type ExtractionUseCase struct {
	loader *DocumentLoader
	pages  ports.PageTextReader
	sheets ports.SheetReader
}

func NewExtractionUseCase(loader *DocumentLoader, pages ports.PageTextReader, sheets ports.SheetReader) *ExtractionUseCase {
	return &ExtractionUseCase{
		loader: loader,
		pages:  pages,
		sheets: sheets,
	}
}

// ExtractText returns the named section, or the full text when the section is
// empty or cannot be found.
func (uc *ExtractionUseCase) ExtractText(ctx context.Context, path, section string) (string, error) {
	text, _, err := uc.ExtractSection(ctx, path, section)
	return text, err
}

// ExtractSection is ExtractText that also reports whether the section heading matched.
func (uc *ExtractionUseCase) ExtractSection(ctx context.Context, path, section string) (string, bool, error) {
	doc, err := uc.loader.Load(ctx, path)
	if err != nil {
		return "", false, err
	}
	if section == "" {
		return doc.Text, false, nil
	}

	text, matched := findSection(doc.Text, section)
	slog.Debug("section_extracted",
		slog.String("path", path),
		slog.String("section", section),
		slog.Bool("matched", matched),
		slog.Int("chars", len(text)),
	)
	return text, matched, nil
}

// ExtractTable renders the table found at locator as markdown. Formats without
// page or sheet structure yield an empty string.
func (uc *ExtractionUseCase) ExtractTable(ctx context.Context, path string, locator domain.TableLocator) (string, error) {
	contentType, ok := domain.DetectContentType(path)
	if !ok || (contentType != domain.ContentTypePDF && contentType != domain.ContentTypeXLSX) {
		return "", nil
	}
	if err := checkDocumentFile("extract table", path); err != nil {
		return "", err
	}

	switch contentType {
	case domain.ContentTypePDF:
		page := locator.Page
		if page == 0 {
			page = 1
		}
		if page < 0 {
			return "", domain.WrapError(domain.ErrLocatorOutOfRange, "extract table", fmt.Errorf("page %d", page))
		}
		text, err := uc.pages.PageText(ctx, path, page)
		if err != nil {
			return "", tableReadError(err)
		}
		return markdownTableFromLines(text), nil
	case domain.ContentTypeXLSX:
		rows, err := uc.sheets.SheetRows(ctx, path, locator.Sheet)
		if err != nil {
			return "", tableReadError(err)
		}
		return markdownTable(rows), nil
	default:
		return "", nil
	}
}

// tableReadError keeps locator and cancellation errors and reports any other
// reader failure as an unparseable document.
func tableReadError(err error) error {
	switch {
	case domain.IsKind(err, domain.ErrLocatorOutOfRange):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrCancelled, "extract table", err)
	default:
		return domain.WrapError(domain.ErrParseFailure, "extract table", err)
	}
}

// ExtractImage returns the OCR text of an image file together with its path.
// Non-image files yield an empty result.
func (uc *ExtractionUseCase) ExtractImage(ctx context.Context, path string) (domain.ExtractedImage, error) {
	contentType, ok := domain.DetectContentType(path)
	if !ok || contentType != domain.ContentTypeImage {
		return domain.ExtractedImage{}, nil
	}
	doc, err := uc.loader.Load(ctx, path)
	if err != nil {
		return domain.ExtractedImage{}, err
	}
	return domain.ExtractedImage{Text: doc.Text, Path: path}, nil
}
