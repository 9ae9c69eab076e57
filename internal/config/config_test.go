package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "CONFIG_FILE", "INDEX_PATH", "UPLOAD_DIR", "OLLAMA_GEN_MODEL", "CHUNK_SIZE", "CHUNK_OVERLAP",
		"RAG_TOP_K", "RAG_RETRIEVAL_MODE", "CLASSIFIER_FALLBACK", "QA_HISTORY_TURNS", "MODEL_CALL_TIMEOUT",
		"SESSION_MAX_TURNS", "SESSION_IDLE_TTL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.IndexPath != "vectorstore/index" {
		t.Fatalf("expected default index path, got %q", cfg.IndexPath)
	}
	if cfg.UploadDir != "temp" {
		t.Fatalf("expected default upload dir temp, got %q", cfg.UploadDir)
	}
	if cfg.OllamaGenModel != "llama3:8b" {
		t.Fatalf("expected default generation model, got %q", cfg.OllamaGenModel)
	}
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 100 {
		t.Fatalf("expected chunking 500/100, got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.RAGTopK != 5 || cfg.RAGRetrievalMode != "semantic" {
		t.Fatalf("unexpected retrieval defaults %d %q", cfg.RAGTopK, cfg.RAGRetrievalMode)
	}
	if cfg.ClassifierFallback != "qa" || cfg.QAHistoryTurns != 2 {
		t.Fatalf("unexpected orchestration defaults %q %d", cfg.ClassifierFallback, cfg.QAHistoryTurns)
	}
	if cfg.ModelCallTimeout != 60*time.Second {
		t.Fatalf("expected 60s model timeout, got %s", cfg.ModelCallTimeout)
	}
	if cfg.SessionMaxTurns != 0 || cfg.SessionIdleTTL != 0 {
		t.Fatalf("expected unbounded sessions by default, got %d turns / %s", cfg.SessionMaxTurns, cfg.SessionIdleTTL)
	}
}

func TestLoadParsesEnvOverrides(t *testing.T) {
	clearEnv(t, "CONFIG_FILE")
	t.Setenv("RAG_RETRIEVAL_MODE", "rerank")
	t.Setenv("RAG_RERANK_CANDIDATES", "40")
	t.Setenv("MODEL_CALL_TIMEOUT", "90s")
	t.Setenv("SESSION_IDLE_TTL", "120")
	t.Setenv("NATS_ENABLED", "true")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RAGRetrievalMode != "rerank" || cfg.RAGRerankCandidates != 40 {
		t.Fatalf("expected rerank override, got %q %d", cfg.RAGRetrievalMode, cfg.RAGRerankCandidates)
	}
	if cfg.ModelCallTimeout != 90*time.Second {
		t.Fatalf("expected 90s, got %s", cfg.ModelCallTimeout)
	}
	if cfg.SessionIdleTTL != 120*time.Second {
		t.Fatalf("expected bare seconds parsed, got %s", cfg.SessionIdleTTL)
	}
	if !cfg.NATSEnabled || cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("unexpected overrides %v %v", cfg.NATSEnabled, cfg.APIRateLimitRPS)
	}
}

func TestLoadInvalidEnvFallsBackToDefault(t *testing.T) {
	clearEnv(t, "CONFIG_FILE")
	t.Setenv("CHUNK_SIZE", "lots")
	t.Setenv("MODEL_CALL_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChunkSize != 500 {
		t.Fatalf("expected fallback chunk size, got %d", cfg.ChunkSize)
	}
	if cfg.ModelCallTimeout != 60*time.Second {
		t.Fatalf("expected fallback timeout, got %s", cfg.ModelCallTimeout)
	}
}

func TestLoadOverlaysYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "vector_backend: qdrant\nchunk_size: 800\nupload_dir: /srv/uploads\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	clearEnv(t, "VECTOR_BACKEND", "UPLOAD_DIR", "CHUNK_OVERLAP")
	t.Setenv("CHUNK_SIZE", "700")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.VectorBackend != "qdrant" || cfg.UploadDir != "/srv/uploads" {
		t.Fatalf("expected yaml overlay, got %q %q", cfg.VectorBackend, cfg.UploadDir)
	}
	if cfg.ChunkSize != 700 {
		t.Fatalf("expected env to win over yaml, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap != 100 {
		t.Fatalf("expected untouched default, got %d", cfg.ChunkOverlap)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("chunk_size: [oops"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
