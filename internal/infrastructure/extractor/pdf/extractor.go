package pdf

import (
	"context"
	"fmt"
	"strings"

	pdfreader "github.com/ledongthuc/pdf"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

// Extractor reads text out of PDF files page by page.
type Extractor struct{}

var (
	_ ports.TextExtractor  = (*Extractor)(nil)
	_ ports.PageTextReader = (*Extractor)(nil)
)

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	var pages []string
	err := withReader(path, func(r *pdfreader.Reader) error {
		total := r.NumPage()
		pages = make([]string, 0, total)
		for i := 1; i <= total; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			text, err := pageText(r, i)
			if err != nil {
				return fmt.Errorf("page %d: %w", i, err)
			}
			if text != "" {
				pages = append(pages, text)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.Join(pages, "\n"), nil
}

// PageText returns the plain text of a single 1-based page.
func (e *Extractor) PageText(_ context.Context, path string, page int) (string, error) {
	var text string
	err := withReader(path, func(r *pdfreader.Reader) error {
		total := r.NumPage()
		if page < 1 || page > total {
			return domain.WrapError(domain.ErrLocatorOutOfRange, "read pdf page", fmt.Errorf("page %d of %d", page, total))
		}
		var err error
		text, err = pageText(r, page)
		return err
	})
	return text, err
}

func pageText(r *pdfreader.Reader, num int) (string, error) {
	page := r.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// withReader opens path and turns parser panics on malformed input into errors.
func withReader(path string, fn func(*pdfreader.Reader) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()

	f, r, err := pdfreader.Open(path)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return fn(r)
}
