package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

type IndexOptions struct {
	EmbedBatchSize   int
	ModelCallTimeout time.Duration
}

// IndexUseCase chunks documents and appends them to the shared vector index.
// The load-mutate-save cycle is serialized within the process; concurrent
// writers in other processes are not coordinated.
type IndexUseCase struct {
	loader   *DocumentLoader
	chunker  ports.Chunker
	embedder ports.Embedder
	index    ports.VectorIndex
	opts     IndexOptions

	mu sync.Mutex
}

func NewIndexUseCase(
	loader *DocumentLoader,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	opts IndexOptions,
) *IndexUseCase {
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 32
	}
	if opts.ModelCallTimeout <= 0 {
		opts.ModelCallTimeout = 60 * time.Second
	}
	return &IndexUseCase{
		loader:   loader,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		opts:     opts,
	}
}

func (uc *IndexUseCase) IndexPaths(ctx context.Context, paths []string) (domain.IndexReport, error) {
	docs, skipped := uc.loader.LoadBatch(ctx, paths)
	report := domain.IndexReport{Skipped: skipped}
	if err := ctx.Err(); err != nil {
		return report, domain.WrapError(domain.ErrCancelled, "index documents", err)
	}
	if len(docs) == 0 {
		slog.Error("index_batch_empty", slog.Int("requested", len(paths)))
		return report, domain.WrapError(domain.ErrIndexFailure, "index documents", errors.New("no valid documents in batch"))
	}

	chunks := uc.chunk(docs)
	if len(chunks) == 0 {
		return report, domain.WrapError(domain.ErrIndexFailure, "chunk documents", errors.New("chunking produced zero chunks"))
	}

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return report, err
	}

	created, err := uc.upsert(ctx, chunks, vectors)
	if err != nil {
		return report, err
	}

	report.Documents = len(docs)
	report.Chunks = len(chunks)
	report.Created = created
	slog.Info("index_updated",
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Bool("created", created),
		slog.Int("skipped", report.SkippedTotal()),
	)
	return report, nil
}

// IndexForQuestion indexes the documents attached to a question. A failed
// batch is tolerated when an earlier index can still answer; cancellation and
// a missing index are returned. The report is filled even on tolerated errors.
func (uc *IndexUseCase) IndexForQuestion(ctx context.Context, paths []string) (domain.IndexReport, error) {
	if len(paths) == 0 {
		return domain.IndexReport{}, nil
	}
	report, err := uc.IndexPaths(ctx, paths)
	if err == nil {
		return report, nil
	}
	if domain.IsKind(err, domain.ErrCancelled) {
		return report, err
	}
	if exists, loadErr := uc.HasIndex(ctx); loadErr != nil || !exists {
		return report, err
	}
	slog.Warn("qa_index_failed_using_existing", slog.String("error", err.Error()))
	return report, nil
}

// HasIndex reports whether a persisted index is available for search.
func (uc *IndexUseCase) HasIndex(ctx context.Context) (bool, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	exists, err := uc.index.Load(ctx)
	if err != nil {
		return false, domain.WrapError(domain.ErrIndexFailure, "load index", err)
	}
	return exists, nil
}

func (uc *IndexUseCase) chunk(docs []domain.Document) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(docs)*4)
	for _, doc := range docs {
		for i, text := range uc.chunker.Split(doc.Text) {
			chunks = append(chunks, domain.Chunk{
				ID:          uuid.NewString(),
				Source:      doc.Source,
				ContentType: doc.ContentType,
				Index:       i,
				Text:        text,
			})
		}
	}
	return chunks
}

func (uc *IndexUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += uc.opts.EmbedBatchSize {
		end := min(start+uc.opts.EmbedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Text)
		}

		batch, err := uc.embedBatch(ctx, texts)
		if err != nil {
			return nil, domain.WrapModelError(domain.ErrIndexFailure, "embed chunks", err)
		}
		if len(batch) != len(texts) {
			return nil, domain.WrapError(
				domain.ErrIndexFailure,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(batch), len(texts)),
			)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (uc *IndexUseCase) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, uc.opts.ModelCallTimeout)
	defer cancel()
	return uc.embedder.Embed(callCtx, texts)
}

func (uc *IndexUseCase) upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) (bool, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, domain.WrapError(domain.ErrCancelled, "update index", err)
	}

	exists, err := uc.index.Load(ctx)
	if err != nil {
		return false, domain.WrapError(domain.ErrIndexFailure, "load index", err)
	}

	if exists {
		if err := uc.index.Add(ctx, chunks, vectors); err != nil {
			return false, domain.WrapError(domain.ErrIndexFailure, "add to index", err)
		}
	} else {
		if err := uc.index.Create(ctx, chunks, vectors); err != nil {
			return false, domain.WrapError(domain.ErrIndexFailure, "create index", err)
		}
	}

	if err := uc.index.Save(ctx); err != nil {
		return false, domain.WrapError(domain.ErrIndexFailure, "save index", err)
	}
	return !exists, nil
}
