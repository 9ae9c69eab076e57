package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/medical-rag-assistant/internal/config"
	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
	"github.com/kirillkom/medical-rag-assistant/internal/core/usecase"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/extractor/docx"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/extractor/imageocr"
	pdfextractor "github.com/kirillkom/medical-rag-assistant/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/extractor/xlsx"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/ocr/gcpvision"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/queue/nats"
	pdfreport "github.com/kirillkom/medical-rag-assistant/internal/infrastructure/report/pdf"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/session/memory"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/vector/localindex"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/vector/qdrant"
)

const (
	qaTemperature      = 0.1
	summaryTemperature = 0.1
)

type App struct {
	Config config.Config

	// Queue is nil when NATS_ENABLED is false.
	Queue        ports.MessageQueue
	Uploader     ports.DocumentUploader
	Indexer      ports.DocumentIndexer
	Queries      ports.QueryService
	Capabilities ports.Capabilities

	closers []func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	policy := resilience.DefaultConfig()
	policy.Retry.MaxAttempts = cfg.RetryMaxAttempts
	policy.Retry.AttemptTimeout = cfg.AttemptTimeout
	policy.Breaker.Enabled = cfg.BreakerEnabled
	executor := resilience.NewExecutor(policy)

	storage, err := localfs.New(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	if cfg.NATSEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
		ollama.WithExecutor(executor),
		ollama.WithVisionModel(cfg.OllamaVisionModel),
	)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)
	classifier := ollama.NewIntentClassifier(ollamaClient)

	ocr, err := app.newOCREngine(ctx, cfg, ollamaClient)
	if err != nil {
		return nil, err
	}

	pdfExtractor := pdfextractor.NewExtractor()
	xlsxExtractor := xlsx.NewExtractor()
	loader := usecase.NewDocumentLoader(map[domain.ContentType]ports.TextExtractor{
		domain.ContentTypePDF:   pdfExtractor,
		domain.ContentTypeDOCX:  docx.NewExtractor(),
		domain.ContentTypeXLSX:  xlsxExtractor,
		domain.ContentTypeImage: imageocr.NewExtractor(ocr),
	}, usecase.LoaderOptions{ModelCallTimeout: cfg.ModelCallTimeout})

	index, err := app.newVectorIndex(cfg, executor)
	if err != nil {
		return nil, err
	}

	sessions, err := app.newSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	indexer := usecase.NewIndexUseCase(loader, chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap), embedder, index, usecase.IndexOptions{
		EmbedBatchSize:   cfg.EmbedBatchSize,
		ModelCallTimeout: cfg.ModelCallTimeout,
	})
	retriever := usecase.NewRetriever(embedder, index, usecase.RetrieverOptions{
		TopK:             cfg.RAGTopK,
		Mode:             cfg.RAGRetrievalMode,
		RerankCandidates: cfg.RAGRerankCandidates,
		ModelCallTimeout: cfg.ModelCallTimeout,
	})
	qa := usecase.NewQAUseCase(retriever, generator, sessions, usecase.QAOptions{
		HistoryExchanges: cfg.QAHistoryTurns,
		TopK:             cfg.RAGTopK,
		Temperature:      qaTemperature,
		ModelCallTimeout: cfg.ModelCallTimeout,
	})
	summarizer := usecase.NewSummarizer(generator, usecase.SummarizerOptions{
		Temperature:      summaryTemperature,
		ModelCallTimeout: cfg.ModelCallTimeout,
	})
	extraction := usecase.NewExtractionUseCase(loader, pdfExtractor, xlsxExtractor)
	reports := usecase.NewReportUseCase(extraction, summarizer, pdfreport.NewRenderer(pdfreport.Options{Compress: true}))

	app.Uploader = usecase.NewUploadUseCase(storage, app.Queue)
	app.Indexer = indexer
	app.Queries = usecase.NewOrchestrator(classifier, indexer, qa, reports, usecase.OrchestratorOptions{
		ClassifierFallback: cfg.ClassifierFallback,
		ModelCallTimeout:   cfg.ModelCallTimeout,
	})
	app.Capabilities = usecase.NewCapabilitySet(indexer, qa, extraction, summarizer, reports)

	ok = true
	return app, nil
}

func (a *App) newOCREngine(ctx context.Context, cfg config.Config, client *ollama.Client) (ports.OCREngine, error) {
	switch cfg.OCRProvider {
	case "", "ollama":
		return ollama.NewOCR(client), nil
	case "gcpvision":
		vision, err := gcpvision.New(ctx, cfg.GoogleCredentials)
		if err != nil {
			return nil, fmt.Errorf("init cloud vision: %w", err)
		}
		a.closers = append(a.closers, func() { _ = vision.Close() })
		return vision, nil
	default:
		return nil, fmt.Errorf("unknown OCR_PROVIDER %q", cfg.OCRProvider)
	}
}

func (a *App) newVectorIndex(cfg config.Config, executor *resilience.Executor) (ports.VectorIndex, error) {
	switch cfg.VectorBackend {
	case "", "local":
		index := localindex.New(cfg.IndexPath)
		a.closers = append(a.closers, func() { _ = index.Close() })
		return index, nil
	case "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.WithExecutor(executor)), nil
	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND %q", cfg.VectorBackend)
	}
}

func (a *App) newSessionStore(ctx context.Context, cfg config.Config) (ports.SessionStore, error) {
	switch cfg.SessionStore {
	case "", "memory":
		store := memory.New(memory.Options{
			MaxTurns: cfg.SessionMaxTurns,
			IdleTTL:  cfg.SessionIdleTTL,
		})
		go store.Run(ctx, 0)
		return store, nil
	case "postgres":
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })

		repo := postgres.NewSessionRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown SESSION_STORE %q", cfg.SessionStore)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	slog.Debug("app_closed")
}
