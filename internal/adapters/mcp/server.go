// Package mcpadapter exposes the assistant capabilities as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

type Options struct {
	Name            string
	Version         string
	ReportOutputDir string
}

type Server struct {
	caps      ports.Capabilities
	reportDir string
	mcp       *server.MCPServer
}

func NewServer(caps ports.Capabilities, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "medical-rag-assistant"
	}
	if opts.Version == "" {
		opts.Version = "0.1.0"
	}
	if opts.ReportOutputDir == "" {
		opts.ReportOutputDir = "reports"
	}

	s := &Server{
		caps:      caps,
		reportDir: opts.ReportOutputDir,
		mcp:       server.NewMCPServer(opts.Name, opts.Version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying server, e.g. for a non-stdio transport.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	stringArray := mcp.Items(map[string]any{"type": "string"})

	s.mcp.AddTool(mcp.NewTool("ingest_documents",
		mcp.WithDescription("Extract, chunk and embed the given files into the vector index."),
		mcp.WithArray("paths", mcp.Required(), stringArray, mcp.Description("Paths of PDF, DOCX, XLSX or image files")),
	), s.ingestDocuments)

	s.mcp.AddTool(mcp.NewTool("answer_question",
		mcp.WithDescription("Answer a question from the indexed documents, keeping per-session history."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question")),
		mcp.WithArray("documents", stringArray, mcp.Description("Files to index before answering")),
		mcp.WithString("session_id", mcp.Description("Conversation id; empty uses the shared \"default\" session")),
	), s.answerQuestion)

	s.mcp.AddTool(mcp.NewTool("extract_text",
		mcp.WithDescription("Return a named section of a document, or its full text."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path")),
		mcp.WithString("section", mcp.Description("Section heading; empty returns the full text")),
	), s.extractText)

	s.mcp.AddTool(mcp.NewTool("extract_table",
		mcp.WithDescription("Return a table as markdown from a PDF page or an XLSX sheet."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path")),
		mcp.WithNumber("page", mcp.Description("1-based PDF page")),
		mcp.WithString("sheet", mcp.Description("XLSX sheet name; empty selects the first sheet")),
	), s.extractTable)

	s.mcp.AddTool(mcp.NewTool("extract_image",
		mcp.WithDescription("OCR an image file and return its text with the image path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Image path")),
	), s.extractImage)

	s.mcp.AddTool(mcp.NewTool("summarize_text",
		mcp.WithDescription("Summarize text to the requested length."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to summarize")),
		mcp.WithString("length", mcp.Description("Summary length, e.g. concise or detailed")),
	), s.summarizeText)

	s.mcp.AddTool(mcp.NewTool("generate_report",
		mcp.WithDescription("Build a PDF report from document sections and return the file path."),
		mcp.WithString("query", mcp.Description("Report request; sections are parsed from it when none are given")),
		mcp.WithArray("documents", mcp.Required(), stringArray, mcp.Description("Source documents in priority order")),
		mcp.WithArray("sections", stringArray, mcp.Description("Section titles in report order")),
	), s.generateReport)
}

func (s *Server) ingestDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := req.GetStringSlice("paths", nil)
	if len(paths) == 0 {
		return mcp.NewToolResultError("paths is required"), nil
	}

	report, err := s.caps.IndexDocuments(ctx, paths)
	if err != nil {
		return toolError("ingest_documents", err), nil
	}
	return jsonResult(report)
}

func (s *Server) answerQuestion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	answer, err := s.caps.AnswerQuestion(ctx, domain.QARequest{
		Query:     query,
		Documents: req.GetStringSlice("documents", nil),
		SessionID: req.GetString("session_id", ""),
	})
	if err != nil {
		return toolError("answer_question", err), nil
	}
	return mcp.NewToolResultText(answer), nil
}

func (s *Server) extractText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text, err := s.caps.ExtractText(ctx, path, req.GetString("section", ""))
	if err != nil {
		return toolError("extract_text", err), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) extractTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	table, err := s.caps.ExtractTable(ctx, path, domain.TableLocator{
		Page:  req.GetInt("page", 0),
		Sheet: req.GetString("sheet", ""),
	})
	if err != nil {
		return toolError("extract_table", err), nil
	}
	return mcp.NewToolResultText(table), nil
}

func (s *Server) extractImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	image, err := s.caps.ExtractImage(ctx, path)
	if err != nil {
		return toolError("extract_image", err), nil
	}
	return jsonResult(image)
}

func (s *Server) summarizeText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	summary, err := s.caps.Summarize(ctx, text, req.GetString("length", ""))
	if err != nil {
		return toolError("summarize_text", err), nil
	}
	return mcp.NewToolResultText(summary), nil
}

func (s *Server) generateReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documents := req.GetStringSlice("documents", nil)
	if len(documents) == 0 {
		return mcp.NewToolResultError("documents is required"), nil
	}
	query := req.GetString("query", "")
	sections := req.GetStringSlice("sections", nil)
	if query == "" && len(sections) == 0 {
		return mcp.NewToolResultError("query or sections is required"), nil
	}

	report, err := s.caps.GenerateReport(ctx, domain.ReportRequest{
		Query:     query,
		Documents: documents,
		Sections:  sections,
	})
	if err != nil {
		return toolError("generate_report", err), nil
	}

	path, err := s.writeReport(report)
	if err != nil {
		return toolError("generate_report", err), nil
	}
	return jsonResult(map[string]any{
		"path":     path,
		"sections": len(report.Sections),
	})
}

func (s *Server) writeReport(report *domain.Report) (string, error) {
	if err := os.MkdirAll(s.reportDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	filename := report.Filename
	if filename == "" {
		filename = domain.ReportFilename
	}
	path := filepath.Join(s.reportDir, uuid.NewString()+"_"+filename)
	if err := os.WriteFile(path, report.Data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// toolError reports a failure to the caller as a tool result so the client
// can show it; the wrapped detail goes to the log only.
func toolError(tool string, err error) *mcp.CallToolResult {
	slog.Warn("tool_failed", slog.String("tool", tool), slog.String("error", err.Error()))
	return mcp.NewToolResultError(errorMessage(err))
}

func errorMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid request"
	case domain.IsKind(err, domain.ErrFileNotFound):
		return "file not found"
	case domain.IsKind(err, domain.ErrUnsupportedType):
		return "unsupported content type"
	case domain.IsKind(err, domain.ErrLocatorOutOfRange):
		return "page or sheet not found"
	case domain.IsKind(err, domain.ErrParseFailure):
		return "document could not be parsed"
	case domain.IsKind(err, domain.ErrCancelled):
		return "request cancelled or timed out"
	case domain.IsKind(err, domain.ErrTemporary):
		return "model backend temporarily unavailable"
	default:
		return "internal processing error"
	}
}
