package domain

import (
	"bytes"
	"strings"
)

type ContentKind string

const (
	ContentKindText  ContentKind = "text"
	ContentKindTable ContentKind = "table"
	ContentKindImage ContentKind = "image"
)

// SectionContent is one of: plain text, a markdown table, or an image with its OCR caption.
type SectionContent struct {
	Kind      ContentKind `json:"kind"`
	Text      string      `json:"text,omitempty"`
	ImagePath string      `json:"image_path,omitempty"`
}

func TextContent(text string) SectionContent {
	kind := ContentKindText
	if LooksLikeMarkdownTable(text) {
		kind = ContentKindTable
	}
	return SectionContent{Kind: kind, Text: text}
}

func ImageContent(text, path string) SectionContent {
	return SectionContent{Kind: ContentKindImage, Text: text, ImagePath: path}
}

func (c SectionContent) IsEmpty() bool {
	if c.Kind == ContentKindImage {
		return c.ImagePath == ""
	}
	return strings.TrimSpace(c.Text) == ""
}

// LooksLikeMarkdownTable reports whether text should be rendered as a grid.
func LooksLikeMarkdownTable(text string) bool {
	return strings.HasPrefix(text, "|") && strings.Count(text, "|") > 1
}

type Section struct {
	Title   string         `json:"title"`
	Source  string         `json:"source,omitempty"`
	Content SectionContent `json:"content"`
}

// ExtractedImage is an image file together with its OCR text.
type ExtractedImage struct {
	Text string `json:"text"`
	Path string `json:"path"`
}

// TableLocator selects a PDF page (1-based) or an XLSX sheet.
type TableLocator struct {
	Page  int    `json:"page,omitempty"`
	Sheet string `json:"sheet,omitempty"`
}

// ReportFilename is the attachment name of generated reports.
const ReportFilename = "generated_report.pdf"

type Report struct {
	Filename string    `json:"filename"`
	Sections []Section `json:"sections"`
	Data     []byte    `json:"-"`
}

// Reader returns a new reader over the rendered document, positioned at its start.
func (r *Report) Reader() *bytes.Reader {
	return bytes.NewReader(r.Data)
}
