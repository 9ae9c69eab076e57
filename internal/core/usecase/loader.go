package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

const (
	skipReasonMissing     = "missing"
	skipReasonUnsupported = "unsupported"
	skipReasonParse       = "parse_failure"
	skipReasonEmpty       = "empty"
	skipReasonTimeout     = "timeout"
)

type LoaderOptions struct {
	// ModelCallTimeout bounds extraction of content that needs a model call
	// (image OCR). Zero leaves it unbounded.
	ModelCallTimeout time.Duration
}

// DocumentLoader turns files into Documents by dispatching on their extension.
type DocumentLoader struct {
	extractors map[domain.ContentType]ports.TextExtractor
	opts       LoaderOptions
}

func NewDocumentLoader(extractors map[domain.ContentType]ports.TextExtractor, opts LoaderOptions) *DocumentLoader {
	return &DocumentLoader{extractors: extractors, opts: opts}
}

func (l *DocumentLoader) Load(ctx context.Context, path string) (*domain.Document, error) {
	contentType, ok := domain.DetectContentType(path)
	if !ok {
		return nil, domain.WrapError(domain.ErrUnsupportedType, "load document", fmt.Errorf("extension of %q", path))
	}
	extractor, ok := l.extractors[contentType]
	if !ok {
		return nil, domain.WrapError(domain.ErrUnsupportedType, "load document", fmt.Errorf("no extractor for %s", contentType))
	}

	if err := checkDocumentFile("load document", path); err != nil {
		return nil, err
	}

	callCtx := ctx
	if contentType == domain.ContentTypeImage && l.opts.ModelCallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.opts.ModelCallTimeout)
		defer cancel()
	}

	text, err := extractor.Extract(callCtx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.WrapError(domain.ErrCancelled, "load document", ctx.Err())
		}
		if callCtx.Err() != nil {
			return nil, domain.WrapError(domain.ErrCancelled, "ocr "+path, callCtx.Err())
		}
		return nil, domain.WrapError(domain.ErrParseFailure, "extract "+string(contentType), err)
	}

	return &domain.Document{
		Source:      path,
		ContentType: contentType,
		Text:        text,
	}, nil
}

// LoadBatch loads every path it can. Failures are logged and counted by
// reason; they never fail the batch on their own.
func (l *DocumentLoader) LoadBatch(ctx context.Context, paths []string) ([]domain.Document, map[string]int) {
	docs := make([]domain.Document, 0, len(paths))
	skipped := map[string]int{}

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		doc, err := l.Load(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			reason := skipReason(err)
			skipped[reason]++
			slog.Warn("document_skipped",
				slog.String("path", path),
				slog.String("reason", reason),
				slog.String("error", err.Error()),
			)
			continue
		}
		if strings.TrimSpace(doc.Text) == "" {
			skipped[skipReasonEmpty]++
			slog.Warn("document_skipped", slog.String("path", path), slog.String("reason", skipReasonEmpty))
			continue
		}
		docs = append(docs, *doc)
	}

	return docs, skipped
}

func skipReason(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrFileNotFound):
		return skipReasonMissing
	case domain.IsKind(err, domain.ErrUnsupportedType):
		return skipReasonUnsupported
	case domain.IsKind(err, domain.ErrCancelled):
		return skipReasonTimeout
	default:
		return skipReasonParse
	}
}

// checkDocumentFile reports a missing path or a directory as ErrFileNotFound
// and any other stat failure as ErrParseFailure.
func checkDocumentFile(op, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.WrapError(domain.ErrFileNotFound, op, err)
		}
		return domain.WrapError(domain.ErrParseFailure, op, err)
	}
	if info.IsDir() {
		return domain.WrapError(domain.ErrFileNotFound, op, fmt.Errorf("%q is a directory", path))
	}
	return nil
}
