package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

type capabilitiesFake struct {
	err          error
	indexedPaths []string
	qa           domain.QARequest
	locator      domain.TableLocator
	section      string
	length       string
	reportReq    domain.ReportRequest
}

func (f *capabilitiesFake) IndexDocuments(_ context.Context, paths []string) (domain.IndexReport, error) {
	f.indexedPaths = paths
	if f.err != nil {
		return domain.IndexReport{}, f.err
	}
	return domain.IndexReport{Documents: len(paths), Chunks: 4, Created: true}, nil
}

func (f *capabilitiesFake) AnswerQuestion(_ context.Context, req domain.QARequest) (string, error) {
	f.qa = req
	if f.err != nil {
		return "", f.err
	}
	return "answer: " + req.Query, nil
}

func (f *capabilitiesFake) ExtractText(_ context.Context, _ string, section string) (string, error) {
	f.section = section
	return "section text", f.err
}

func (f *capabilitiesFake) ExtractTable(_ context.Context, _ string, locator domain.TableLocator) (string, error) {
	f.locator = locator
	return "| a | b |\n| --- | --- |\n| 1 | 2 |", f.err
}

func (f *capabilitiesFake) ExtractImage(_ context.Context, path string) (domain.ExtractedImage, error) {
	return domain.ExtractedImage{Text: "Hb 13.5", Path: path}, f.err
}

func (f *capabilitiesFake) Summarize(_ context.Context, text, length string) (string, error) {
	f.length = length
	return "short " + text, f.err
}

func (f *capabilitiesFake) GenerateReport(_ context.Context, req domain.ReportRequest) (*domain.Report, error) {
	f.reportReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Report{
		Filename: domain.ReportFilename,
		Sections: []domain.Section{{Title: "Intro"}},
		Data:     []byte("%PDF-1.3"),
	}, nil
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("expected tool content, got %+v", res)
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	default:
		t.Fatalf("unexpected content type %T", c)
		return ""
	}
}

func TestIngestDocumentsReturnsIndexReport(t *testing.T) {
	caps := &capabilitiesFake{}
	s := NewServer(caps, Options{ReportOutputDir: t.TempDir()})

	res, err := s.ingestDocuments(context.Background(), callRequest(map[string]any{
		"paths": []any{"temp/a.pdf", "temp/b.docx"},
	}))
	if err != nil {
		t.Fatalf("ingestDocuments() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	var report domain.IndexReport
	if err := json.Unmarshal([]byte(resultText(t, res)), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Documents != 2 || report.Chunks != 4 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(caps.indexedPaths) != 2 || caps.indexedPaths[1] != "temp/b.docx" {
		t.Fatalf("unexpected paths %v", caps.indexedPaths)
	}
}

func TestIngestDocumentsRequiresPaths(t *testing.T) {
	s := NewServer(&capabilitiesFake{}, Options{})

	res, err := s.ingestDocuments(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("ingestDocuments() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing paths")
	}
}

func TestAnswerQuestionForwardsSession(t *testing.T) {
	caps := &capabilitiesFake{}
	s := NewServer(caps, Options{})

	res, err := s.answerQuestion(context.Background(), callRequest(map[string]any{
		"query":      "What is the dose?",
		"documents":  []any{"temp/a.pdf"},
		"session_id": "s-1",
	}))
	if err != nil {
		t.Fatalf("answerQuestion() error = %v", err)
	}
	if got := resultText(t, res); got != "answer: What is the dose?" {
		t.Fatalf("unexpected answer %q", got)
	}
	if caps.qa.SessionID != "s-1" || len(caps.qa.Documents) != 1 {
		t.Fatalf("unexpected request %+v", caps.qa)
	}
}

func TestAnswerQuestionMissingQuery(t *testing.T) {
	s := NewServer(&capabilitiesFake{}, Options{})

	res, err := s.answerQuestion(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("answerQuestion() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error")
	}
}

func TestExtractTableReadsLocator(t *testing.T) {
	caps := &capabilitiesFake{}
	s := NewServer(caps, Options{})

	res, err := s.extractTable(context.Background(), callRequest(map[string]any{
		"path":  "temp/labs.pdf",
		"page":  float64(2),
		"sheet": "",
	}))
	if err != nil {
		t.Fatalf("extractTable() error = %v", err)
	}
	if !strings.HasPrefix(resultText(t, res), "| a | b |") {
		t.Fatalf("unexpected table %q", resultText(t, res))
	}
	if caps.locator.Page != 2 {
		t.Fatalf("expected page 2, got %+v", caps.locator)
	}
}

func TestExtractTextAndSummarizePassOptionalArgs(t *testing.T) {
	caps := &capabilitiesFake{}
	s := NewServer(caps, Options{})

	if _, err := s.extractText(context.Background(), callRequest(map[string]any{
		"path":    "temp/a.docx",
		"section": "INTRODUCTION",
	})); err != nil {
		t.Fatalf("extractText() error = %v", err)
	}
	if caps.section != "INTRODUCTION" {
		t.Fatalf("expected section forwarded, got %q", caps.section)
	}

	res, err := s.summarizeText(context.Background(), callRequest(map[string]any{
		"text":   "long text",
		"length": "detailed",
	}))
	if err != nil {
		t.Fatalf("summarizeText() error = %v", err)
	}
	if resultText(t, res) != "short long text" || caps.length != "detailed" {
		t.Fatalf("unexpected summary %q length %q", resultText(t, res), caps.length)
	}
}

func TestExtractImageReturnsTextAndPath(t *testing.T) {
	s := NewServer(&capabilitiesFake{}, Options{})

	res, err := s.extractImage(context.Background(), callRequest(map[string]any{"path": "temp/scan.png"}))
	if err != nil {
		t.Fatalf("extractImage() error = %v", err)
	}
	var image domain.ExtractedImage
	if err := json.Unmarshal([]byte(resultText(t, res)), &image); err != nil {
		t.Fatalf("decode image: %v", err)
	}
	if image.Text != "Hb 13.5" || image.Path != "temp/scan.png" {
		t.Fatalf("unexpected image %+v", image)
	}
}

func TestGenerateReportWritesPDF(t *testing.T) {
	dir := t.TempDir()
	caps := &capabilitiesFake{}
	s := NewServer(caps, Options{ReportOutputDir: dir})

	res, err := s.generateReport(context.Background(), callRequest(map[string]any{
		"documents": []any{"temp/a.pdf"},
		"sections":  []any{"Intro", "Summary"},
	}))
	if err != nil {
		t.Fatalf("generateReport() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	var out struct {
		Path     string `json:"path"`
		Sections int    `json:"sections"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if filepath.Dir(out.Path) != dir || !strings.HasSuffix(out.Path, "_generated_report.pdf") {
		t.Fatalf("unexpected report path %q", out.Path)
	}
	data, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if string(data) != "%PDF-1.3" {
		t.Fatalf("unexpected report bytes %q", data)
	}
	if len(caps.reportReq.Sections) != 2 || caps.reportReq.Sections[1] != "Summary" {
		t.Fatalf("sections not forwarded in order: %v", caps.reportReq.Sections)
	}
}

func TestToolErrorsHideInternalDetail(t *testing.T) {
	caps := &capabilitiesFake{err: domain.WrapError(domain.ErrFileNotFound, "load", errors.New("/secret/path.pdf"))}
	s := NewServer(caps, Options{})

	res, err := s.ingestDocuments(context.Background(), callRequest(map[string]any{"paths": []any{"x.pdf"}}))
	if err != nil {
		t.Fatalf("ingestDocuments() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error")
	}
	text := resultText(t, res)
	if text != "file not found" {
		t.Fatalf("unexpected message %q", text)
	}
}
