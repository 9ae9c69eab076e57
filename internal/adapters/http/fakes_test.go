package httpadapter

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/kirillkom/medical-rag-assistant/internal/config"
	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

type uploaderFake struct {
	mu       sync.Mutex
	err      error
	received map[string]string
}

func (f *uploaderFake) Upload(_ context.Context, filename string, body io.Reader) (*domain.UploadedFile, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.received == nil {
		f.received = make(map[string]string)
	}
	f.received[filename] = string(raw)
	return &domain.UploadedFile{Filename: filename, Path: "temp/id_" + filename}, nil
}

type queryServiceFake struct {
	result *domain.QueryResult
	err    error
	last   domain.QueryRequest
}

func (f *queryServiceFake) Handle(_ context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &domain.QueryResult{Kind: domain.IntentQA, Answer: "ok"}, nil
}

func newTestHandler(cfg config.Config) http.Handler {
	return NewRouter(cfg, &uploaderFake{}, &queryServiceFake{}).Handler()
}
