package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/resilience"
)

func captureGenerate(t *testing.T, reply string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		*captured = payload
		_ = json.NewEncoder(w).Encode(map[string]string{"response": reply})
	}))
}

func TestGeneratorSendsTemperatureAndFormat(t *testing.T) {
	var payload map[string]any
	server := captureGenerate(t, "  grounded answer \n", &payload)
	defer server.Close()

	gen := NewGenerator(New(server.URL, "llama3:8b", "nomic-embed-text"))
	out, err := gen.GenerateFromPrompt(context.Background(), "prompt text", domain.GenerateOptions{Temperature: 0.1, JSON: true})
	if err != nil {
		t.Fatalf("GenerateFromPrompt() error = %v", err)
	}
	if out != "  grounded answer \n" {
		t.Fatalf("expected output returned verbatim, got %q", out)
	}
	if payload["model"] != "llama3:8b" || payload["prompt"] != "prompt text" || payload["stream"] != false {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["format"] != "json" {
		t.Fatalf("expected json format, got %v", payload["format"])
	}
	options, _ := payload["options"].(map[string]any)
	if options["temperature"] != 0.1 {
		t.Fatalf("expected temperature 0.1, got %v", options["temperature"])
	}
}

func TestIntentClassifierPrompt(t *testing.T) {
	var payload map[string]any
	server := captureGenerate(t, " Report\n", &payload)
	defer server.Close()

	classifier := NewIntentClassifier(New(server.URL, "gen", "embed"))
	label, err := classifier.ClassifyIntent(context.Background(), "Generate report with Risks")
	if err != nil {
		t.Fatalf("ClassifyIntent() error = %v", err)
	}
	if label != "Report" {
		t.Fatalf("unexpected label %q", label)
	}
	prompt, _ := payload["prompt"].(string)
	if !strings.HasPrefix(prompt, "Classify: Generate report with Risks\n") || !strings.Contains(prompt, "Answer only 'QA' or 'Report'.") {
		t.Fatalf("unexpected prompt: %s", prompt)
	}
	if _, ok := payload["format"]; ok {
		t.Fatalf("classifier must not request json format")
	}
	options, _ := payload["options"].(map[string]any)
	if options["temperature"] != 0.3 {
		t.Fatalf("expected temperature 0.3, got %v", options["temperature"])
	}
}

func TestOCRSendsImageToVisionModel(t *testing.T) {
	var payload map[string]any
	server := captureGenerate(t, "Hb 13.5 g/dL\n", &payload)
	defer server.Close()

	ocr := NewOCR(New(server.URL, "gen", "embed", WithVisionModel("llava")))
	text, err := ocr.Recognize(context.Background(), []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "Hb 13.5 g/dL" {
		t.Fatalf("unexpected text %q", text)
	}
	if payload["model"] != "llava" {
		t.Fatalf("expected vision model, got %v", payload["model"])
	}
	images, _ := payload["images"].([]any)
	if len(images) != 1 || images[0] != base64.StdEncoding.EncodeToString([]byte("png-bytes")) {
		t.Fatalf("unexpected images: %v", payload["images"])
	}
}

func TestEmbedReturnsVectors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	}))
	defer server.Close()

	vectors, err := NewEmbedder(New(server.URL, "gen", "embed")).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || vectors[1][0] != float32(0.3) {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestEmbedRejectsVectorCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2]]}`))
	}))
	defer server.Close()

	_, err := NewEmbedder(New(server.URL, "gen", "embed")).Embed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed")
	embedder := NewEmbedder(client)
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error kind, got %v", err)
	}
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected HTTPStatusError 502, got %v", err)
	}
}

func TestClientRetriesThroughExecutor(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{Retry: resilience.RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}})
	gen := NewGenerator(New(server.URL, "gen", "embed", WithExecutor(executor)))

	out, err := gen.GenerateFromPrompt(context.Background(), "hi", domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateFromPrompt() error = %v", err)
	}
	if out != "ok" || calls.Load() != 3 {
		t.Fatalf("expected success on third call, got %q after %d calls", out, calls.Load())
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{Retry: resilience.RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}})
	gen := NewGenerator(New(server.URL, "gen", "embed", WithExecutor(executor)))

	_, err := gen.GenerateFromPrompt(context.Background(), "hi", domain.GenerateOptions{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("404 must not be temporary: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || !statusErr.ModelMissing() {
		t.Fatalf("expected missing-model status error, got %v", err)
	}
	if !strings.Contains(err.Error(), "is the model pulled?") {
		t.Fatalf("expected pull hint in %q", err.Error())
	}
}
