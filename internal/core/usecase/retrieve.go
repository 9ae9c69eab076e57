package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

const (
	RetrievalModeSemantic = "semantic"
	RetrievalModeRerank   = "rerank"
)

type RetrieverOptions struct {
	TopK             int
	Mode             string
	RerankCandidates int
	ModelCallTimeout time.Duration
}

type Retriever struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	opts     RetrieverOptions
}

func NewRetriever(embedder ports.Embedder, index ports.VectorIndex, opts RetrieverOptions) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Mode == "" {
		opts.Mode = RetrievalModeSemantic
	}
	if opts.RerankCandidates < opts.TopK {
		opts.RerankCandidates = opts.TopK * 4
	}
	if opts.ModelCallTimeout <= 0 {
		opts.ModelCallTimeout = 60 * time.Second
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		opts:     opts,
	}
}

// Retrieve returns at most k chunks ordered by descending similarity.
// A non-positive k uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error) {
	if k <= 0 {
		k = r.opts.TopK
	}

	queryVector, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapModelError(domain.ErrIndexFailure, "embed query", err)
	}

	limit := k
	if r.opts.Mode == RetrievalModeRerank {
		limit = max(r.opts.RerankCandidates, k)
	}

	chunks, err := r.index.Search(ctx, queryVector, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexFailure, "search index", fmt.Errorf("limit=%d: %w", limit, err))
	}

	if r.opts.Mode == RetrievalModeRerank {
		chunks = rerank(query, chunks)
	}
	if len(chunks) > k {
		chunks = chunks[:k]
	}
	return chunks, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.ModelCallTimeout)
	defer cancel()
	return r.embedder.EmbedQuery(callCtx, query)
}
