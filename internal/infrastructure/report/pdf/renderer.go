package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/imaging"
)

const (
	fontFamily     = "Helvetica"
	marginTop      = 60.0
	marginSide     = 72.0
	sectionSpacing = 24.0
	lineHeight     = 14.0
	rowHeight      = 18.0
	imageWidth     = 450.0
	imageHeight    = 250.0

	imageFailedText = "[Image failed to load]"
)

var separatorCell = regexp.MustCompile(`^:?-{3,}:?$`)

type Options struct {
	// Compress deflates page streams. Disabled output keeps text greppable.
	Compress bool
}

// Renderer lays report sections out on Letter pages.
type Renderer struct {
	opts Options
}

var _ ports.ReportRenderer = (*Renderer)(nil)

func NewRenderer(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

func (r *Renderer) Render(ctx context.Context, sections []domain.Section) (*domain.Report, error) {
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetCompression(r.opts.Compress)
	doc.SetMargins(marginSide, marginTop, marginSide)
	doc.SetAutoPageBreak(true, marginTop)
	doc.AddPage()

	w := &writer{doc: doc, tr: doc.UnicodeTranslatorFromDescriptor("")}
	for i, section := range sections {
		if err := ctx.Err(); err != nil {
			return nil, domain.WrapError(domain.ErrCancelled, "render report", err)
		}
		if i > 0 {
			doc.Ln(sectionSpacing)
		}
		w.heading(section.Title)

		switch section.Content.Kind {
		case domain.ContentKindImage:
			w.image(i, section.Content)
		case domain.ContentKindTable:
			w.table(section.Content.Text)
		default:
			if domain.LooksLikeMarkdownTable(section.Content.Text) {
				w.table(section.Content.Text)
			} else {
				w.paragraph(section.Content.Text)
			}
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("write report pdf: %w", err)
	}
	return &domain.Report{
		Filename: domain.ReportFilename,
		Sections: sections,
		Data:     buf.Bytes(),
	}, nil
}

type writer struct {
	doc *fpdf.Fpdf
	tr  func(string) string
}

func (w *writer) heading(title string) {
	w.doc.SetFont(fontFamily, "B", 18)
	w.doc.SetTextColor(0, 0, 0)
	w.doc.MultiCell(0, 22, w.tr(title), "", "L", false)
	w.doc.Ln(6)
}

func (w *writer) paragraph(text string) {
	w.doc.SetFont(fontFamily, "", 11)
	w.doc.SetTextColor(0, 0, 0)
	w.doc.MultiCell(0, lineHeight, w.tr(strings.TrimSpace(text)), "", "L", false)
}

func (w *writer) table(text string) {
	rows, ok := parseMarkdownTable(text)
	if !ok {
		w.paragraph(text)
		return
	}

	left, _, right, _ := w.doc.GetMargins()
	pageWidth, _ := w.doc.GetPageSize()
	colWidth := (pageWidth - left - right) / float64(len(rows[0]))

	w.doc.SetDrawColor(0, 0, 0)
	w.doc.SetLineWidth(0.5)

	w.doc.SetFont(fontFamily, "B", 10)
	w.doc.SetFillColor(128, 128, 128)
	w.doc.SetTextColor(245, 245, 245)
	for _, cell := range rows[0] {
		w.doc.CellFormat(colWidth, rowHeight, w.fit(cell, colWidth), "1", 0, "C", true, 0, "")
	}
	w.doc.Ln(-1)

	w.doc.SetFont(fontFamily, "", 10)
	w.doc.SetFillColor(245, 245, 220)
	w.doc.SetTextColor(0, 0, 0)
	for _, row := range rows[1:] {
		for _, cell := range row {
			w.doc.CellFormat(colWidth, rowHeight, w.fit(cell, colWidth), "1", 0, "L", true, 0, "")
		}
		w.doc.Ln(-1)
	}
}

func (w *writer) image(index int, content domain.SectionContent) {
	if !w.embedImage(index, content.ImagePath) {
		w.paragraph(imageFailedText)
	}
	if caption := strings.TrimSpace(content.Text); caption != "" {
		w.doc.Ln(4)
		w.doc.SetFont(fontFamily, "I", 10)
		w.doc.SetTextColor(0, 0, 0)
		w.doc.MultiCell(0, 12, w.tr(caption), "", "L", false)
	}
}

func (w *writer) embedImage(index int, path string) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("report_image_failed", slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	data, err := imaging.FlattenPNG(raw)
	if err != nil {
		slog.Warn("report_image_failed", slog.String("path", path), slog.String("error", err.Error()))
		return false
	}

	name := fmt.Sprintf("section-image-%d", index)
	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	w.doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if w.doc.Err() {
		slog.Warn("report_image_failed", slog.String("path", path), slog.String("error", w.doc.Error().Error()))
		w.doc.ClearError()
		return false
	}

	left, _, _, _ := w.doc.GetMargins()
	w.doc.ImageOptions(name, left, w.doc.GetY(), imageWidth, imageHeight, true, opts, 0, "")
	return true
}

// fit truncates text with an ellipsis so it stays inside one grid cell.
func (w *writer) fit(text string, width float64) string {
	s := w.tr(text)
	limit := width - 6
	if w.doc.GetStringWidth(s) <= limit {
		return s
	}
	for len(s) > 0 && w.doc.GetStringWidth(s+"...") > limit {
		s = s[:len(s)-1]
	}
	return s + "..."
}

// parseMarkdownTable reads a pipe table. It reports false when the text is
// not a consistent table so the caller can fall back to a paragraph.
func parseMarkdownTable(text string) ([][]string, bool) {
	var rows [][]string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") || len(line) < 2 {
			return nil, false
		}
		cells := splitRow(line[1 : len(line)-1])
		if isSeparatorRow(cells) {
			continue
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, false
	}
	width := len(rows[0])
	for _, row := range rows[1:] {
		if len(row) != width {
			return nil, false
		}
	}
	return rows, true
}

func splitRow(inner string) []string {
	var (
		cells []string
		cur   strings.Builder
	)
	for i := 0; i < len(inner); i++ {
		switch {
		case inner[i] == '\\' && i+1 < len(inner) && inner[i+1] == '|':
			cur.WriteByte('|')
			i++
		case inner[i] == '|':
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(inner[i])
		}
	}
	return append(cells, strings.TrimSpace(cur.String()))
}

func isSeparatorRow(cells []string) bool {
	for _, cell := range cells {
		if !separatorCell.MatchString(cell) {
			return false
		}
	}
	return true
}
