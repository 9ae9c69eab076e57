package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

const (
	ClassifierFallbackQA    = "qa"
	ClassifierFallbackError = "error"
)

type OrchestratorOptions struct {
	// ClassifierFallback decides what happens to classifier output that is
	// neither QA nor Report: route to QA ("qa") or reject the query ("error").
	ClassifierFallback string
	ModelCallTimeout   time.Duration
}

// Orchestrator classifies each query and routes it to the QA or report flow.
type Orchestrator struct {
	classifier ports.IntentClassifier
	indexer    *IndexUseCase
	qa         *QAUseCase
	reports    *ReportUseCase
	opts       OrchestratorOptions
}

func NewOrchestrator(
	classifier ports.IntentClassifier,
	indexer *IndexUseCase,
	qa *QAUseCase,
	reports *ReportUseCase,
	opts OrchestratorOptions,
) *Orchestrator {
	if opts.ClassifierFallback != ClassifierFallbackError {
		opts.ClassifierFallback = ClassifierFallbackQA
	}
	if opts.ModelCallTimeout <= 0 {
		opts.ModelCallTimeout = 60 * time.Second
	}
	return &Orchestrator{
		classifier: classifier,
		indexer:    indexer,
		qa:         qa,
		reports:    reports,
		opts:       opts,
	}
}

func (o *Orchestrator) Handle(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "handle query", errors.New("query is required"))
	}

	intent, raw, fellBack, err := o.classify(ctx, query)
	if err != nil {
		return nil, err
	}
	slog.Info("query_classified",
		slog.String("intent", string(intent)),
		slog.String("raw", raw),
		slog.Bool("fallback", fellBack),
	)

	var result *domain.QueryResult
	switch intent {
	case domain.IntentReport:
		result, err = o.reportFlow(ctx, domain.ReportRequest{
			Query:     query,
			Documents: req.Documents,
			Sections:  parseRequestedSections(query),
		})
	default:
		result, err = o.qaFlow(ctx, domain.QARequest{
			Query:     query,
			Documents: req.Documents,
			SessionID: normalizeSessionID(req.SessionID),
		})
	}
	if err != nil {
		return nil, err
	}

	result.Stats.ClassifierRaw = raw
	result.Stats.FallbackApplied = fellBack
	return result, nil
}

func (o *Orchestrator) classify(ctx context.Context, query string) (domain.Intent, string, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.ModelCallTimeout)
	defer cancel()

	raw, err := o.classifier.ClassifyIntent(callCtx, query)
	if err != nil {
		return "", raw, false, domain.WrapModelError(domain.ErrGenerationFailure, "classify query", err)
	}

	if intent, ok := ParseIntent(raw); ok {
		return intent, raw, false, nil
	}

	if o.opts.ClassifierFallback == ClassifierFallbackError {
		return "", raw, false, domain.WrapError(domain.ErrInvalidInput, "classify query", fmt.Errorf("unrecognized classification %q", raw))
	}
	slog.Warn("classifier_fallback", slog.String("raw", raw), slog.String("intent", string(domain.IntentQA)))
	return domain.IntentQA, raw, true, nil
}

func (o *Orchestrator) qaFlow(ctx context.Context, req domain.QARequest) (*domain.QueryResult, error) {
	stats := domain.QueryStats{}

	report, err := o.indexer.IndexForQuestion(ctx, req.Documents)
	stats.IndexedDocuments = report.Documents
	stats.SkippedDocuments = report.SkippedTotal()
	stats.SkipReasons = report.Skipped
	stats.Chunks = report.Chunks
	if err != nil {
		return nil, err
	}

	answer, retrieved, err := o.qa.answer(ctx, req)
	if err != nil {
		return nil, err
	}
	stats.RetrievedChunks = retrieved

	return &domain.QueryResult{
		Kind:   domain.IntentQA,
		Answer: answer,
		Stats:  stats,
	}, nil
}

func (o *Orchestrator) reportFlow(ctx context.Context, req domain.ReportRequest) (*domain.QueryResult, error) {
	report, err := o.reports.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return &domain.QueryResult{
		Kind:   domain.IntentReport,
		Report: report,
	}, nil
}

// ParseIntent maps raw classifier output onto an Intent. Output naming both
// labels or neither is not recognized.
func ParseIntent(raw string) (domain.Intent, bool) {
	words := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	var qa, report bool
	for _, word := range words {
		switch word {
		case "qa":
			qa = true
		case "report":
			report = true
		}
	}
	switch {
	case report && !qa:
		return domain.IntentReport, true
	case qa && !report:
		return domain.IntentQA, true
	default:
		return "", false
	}
}
