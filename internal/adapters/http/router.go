package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/config"
	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
	"github.com/kirillkom/medical-rag-assistant/internal/observability/metrics"
)

const (
	defaultMaxUploadMB  = 32
	maxQueryBodyBytes   = 1 << 20
	uploadFormFieldName = "files"
)

type Router struct {
	cfg      config.Config
	uploader ports.DocumentUploader
	queries  ports.QueryService
	metrics  *metrics.HTTPServerMetrics
}

type RouterOption func(*Router)

// WithMetrics serves /metrics and records request and query metrics.
func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func NewRouter(
	cfg config.Config,
	uploader ports.DocumentUploader,
	queries ports.QueryService,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		cfg:      cfg,
		uploader: uploader,
		queries:  queries,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/upload", rt.trafficControl(http.HandlerFunc(rt.upload)))
	mux.Handle("/query", rt.trafficControl(http.HandlerFunc(rt.query)))
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) trafficControl(next http.Handler) http.Handler {
	next = backpressureMiddleware(next, rt.cfg.APIBackpressureMaxInFlight, rt.cfg.APIBackpressureWait)
	return rateLimitMiddleware(next, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	maxBytes := int64(rt.cfg.MaxUploadMB)
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadMB
	}
	maxBytes <<= 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		rt.writeError(w, r, "upload", domain.WrapError(domain.ErrInvalidInput, "parse multipart form", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[uploadFormFieldName]
	if len(headers) == 0 {
		rt.writeError(w, r, "upload", domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("multipart field 'files' is required")))
		return
	}

	paths := make([]string, 0, len(headers))
	for _, header := range headers {
		uploaded, err := rt.saveUpload(r, header)
		if err != nil {
			rt.writeError(w, r, "upload", err)
			return
		}
		paths = append(paths, uploaded.Path)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Files uploaded successfully",
		"files":   paths,
	})
}

func (rt *Router) saveUpload(r *http.Request, header *multipart.FileHeader) (*domain.UploadedFile, error) {
	file, err := header.Open()
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open multipart file", err)
	}
	defer file.Close()

	return rt.uploader.Upload(r.Context(), header.Filename, file)
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req domain.QueryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxQueryBodyBytes)).Decode(&req); err != nil {
		rt.writeError(w, r, "query", domain.WrapError(domain.ErrInvalidInput, "decode query", err))
		return
	}

	start := time.Now()
	result, err := rt.queries.Handle(r.Context(), req)
	if err != nil {
		rt.recordQuery("", "error", start)
		rt.writeError(w, r, "query", err)
		return
	}
	rt.recordQuery(string(result.Kind), "ok", start)
	if rt.metrics != nil {
		rt.metrics.RecordQueryStats(result.Stats, result.Kind)
	}

	if result.Kind == domain.IntentReport && result.Report != nil {
		writeReport(w, result.Report)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": result.Answer})
}

func (rt *Router) recordQuery(intent, status string, start time.Time) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordQuery(intent, status, time.Since(start))
}

func writeReport(w http.ResponseWriter, report *domain.Report) {
	filename := report.Filename
	if filename == "" {
		filename = domain.ReportFilename
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(report.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, report.Reader())
}

// writeError logs the failure with its request id and answers with a
// generic message for the mapped status.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := mapErrorToHTTPStatus(err)
	attrs := []any{
		"request_id", requestIDFromContext(r.Context()),
		"op", op,
		"status", status,
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", attrs...)
	} else {
		slog.Warn("request_failed", attrs...)
	}
	writeJSON(w, status, map[string]string{"error": publicErrorMessage(status)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
