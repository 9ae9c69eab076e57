package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

func newExtractionFixture(t *testing.T, texts map[string]string, names ...string) (*ExtractionUseCase, []string) {
	t.Helper()
	_, paths := writeFiles(t, names...)
	loader, _ := newLoaderFake(texts)
	pages := &pageReaderFake{pages: map[int]string{
		1: "Drug Dose\nAspirin 100mg\nHeparin 5000IU",
		2: "Name Value\nA 1",
	}}
	sheets := &sheetReaderFake{first: "Labs", sheets: map[string][][]string{
		"Labs":  {{"Test", "Result"}, {"Hb", "13"}},
		"Notes": {{"Note"}, {"ok"}},
	}}
	return NewExtractionUseCase(loader, pages, sheets), paths
}

func TestExtractTextSectionAndFallback(t *testing.T) {
	uc, paths := newExtractionFixture(t, map[string]string{
		"study.docx": "Abstract\nRISKS\nBleeding risk is low.\nCONCLUSION\nDone.",
	}, "study.docx")
	ctx := context.Background()

	text, err := uc.ExtractText(ctx, paths[0], "risks")
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if text != "RISKS\nBleeding risk is low." {
		t.Fatalf("unexpected section %q", text)
	}

	full, matched, err := uc.ExtractSection(ctx, paths[0], "Dosage")
	if err != nil {
		t.Fatalf("ExtractSection() error = %v", err)
	}
	if matched || full != "Abstract\nRISKS\nBleeding risk is low.\nCONCLUSION\nDone." {
		t.Fatalf("expected full-text fallback, got matched=%v %q", matched, full)
	}
}

func TestExtractTablePDFAndXLSX(t *testing.T) {
	uc, paths := newExtractionFixture(t, nil, "table.pdf", "labs.xlsx", "notes.docx")
	ctx := context.Background()

	table, err := uc.ExtractTable(ctx, paths[0], domain.TableLocator{})
	if err != nil {
		t.Fatalf("ExtractTable(pdf) error = %v", err)
	}
	want := "| Drug | Dose |\n| --- | --- |\n| Aspirin | 100mg |\n| Heparin | 5000IU |"
	if table != want {
		t.Fatalf("unexpected pdf table:\n%s", table)
	}

	table, err = uc.ExtractTable(ctx, paths[1], domain.TableLocator{Sheet: "Notes"})
	if err != nil {
		t.Fatalf("ExtractTable(xlsx) error = %v", err)
	}
	if table != "| Note |\n| --- |\n| ok |" {
		t.Fatalf("unexpected xlsx table:\n%s", table)
	}

	table, err = uc.ExtractTable(ctx, paths[2], domain.TableLocator{})
	if err != nil || table != "" {
		t.Fatalf("expected empty table for docx, got %q, %v", table, err)
	}
}

func TestExtractTableLocatorOutOfRange(t *testing.T) {
	uc, paths := newExtractionFixture(t, nil, "table.pdf", "labs.xlsx")
	ctx := context.Background()

	if _, err := uc.ExtractTable(ctx, paths[0], domain.TableLocator{Page: 9}); !domain.IsKind(err, domain.ErrLocatorOutOfRange) {
		t.Fatalf("expected locator out of range for page, got %v", err)
	}
	if _, err := uc.ExtractTable(ctx, paths[0], domain.TableLocator{Page: -1}); !domain.IsKind(err, domain.ErrLocatorOutOfRange) {
		t.Fatalf("expected locator out of range for negative page, got %v", err)
	}
	if _, err := uc.ExtractTable(ctx, paths[1], domain.TableLocator{Sheet: "Missing"}); !domain.IsKind(err, domain.ErrLocatorOutOfRange) {
		t.Fatalf("expected locator out of range for sheet, got %v", err)
	}
}

func TestExtractImage(t *testing.T) {
	uc, paths := newExtractionFixture(t, map[string]string{"xray.png": "Left lung clear"}, "xray.png", "notes.pdf")
	ctx := context.Background()

	img, err := uc.ExtractImage(ctx, paths[0])
	if err != nil {
		t.Fatalf("ExtractImage() error = %v", err)
	}
	if img.Text != "Left lung clear" || img.Path != paths[0] {
		t.Fatalf("unexpected image %+v", img)
	}

	img, err = uc.ExtractImage(ctx, paths[1])
	if err != nil || img.Path != "" {
		t.Fatalf("expected empty image for pdf, got %+v, %v", img, err)
	}
}

func TestExtractTableErrorKinds(t *testing.T) {
	uc, paths := newExtractionFixture(t, nil, "study.pdf", "labs.xlsx")
	ctx := context.Background()

	missing := filepath.Join(filepath.Dir(paths[0]), "nonexistent.pdf")
	if _, err := uc.ExtractTable(ctx, missing, domain.TableLocator{}); !domain.IsKind(err, domain.ErrFileNotFound) {
		t.Fatalf("expected file not found for missing pdf, got %v", err)
	}

	uc.pages.(*pageReaderFake).err = errors.New("malformed PDF: xref table not found")
	if _, err := uc.ExtractTable(ctx, paths[0], domain.TableLocator{}); !domain.IsKind(err, domain.ErrParseFailure) {
		t.Fatalf("expected parse failure for corrupt pdf, got %v", err)
	}

	uc.sheets.(*sheetReaderFake).err = errors.New("zip: not a valid zip file")
	if _, err := uc.ExtractTable(ctx, paths[1], domain.TableLocator{}); !domain.IsKind(err, domain.ErrParseFailure) {
		t.Fatalf("expected parse failure for corrupt xlsx, got %v", err)
	}
}
