package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

type QAOptions struct {
	HistoryExchanges int
	TopK             int
	Temperature      float64
	ModelCallTimeout time.Duration
}

// QAUseCase answers questions from retrieved context plus short-term session memory.
type QAUseCase struct {
	retriever *Retriever
	generator ports.TextGenerator
	sessions  ports.SessionStore
	locks     *keyedMutex
	opts      QAOptions
	now       func() time.Time
}

func NewQAUseCase(retriever *Retriever, generator ports.TextGenerator, sessions ports.SessionStore, opts QAOptions) *QAUseCase {
	if opts.HistoryExchanges <= 0 {
		opts.HistoryExchanges = 2
	}
	if opts.ModelCallTimeout <= 0 {
		opts.ModelCallTimeout = 120 * time.Second
	}
	return &QAUseCase{
		retriever: retriever,
		generator: generator,
		sessions:  sessions,
		locks:     newKeyedMutex(),
		opts:      opts,
		now:       time.Now,
	}
}

// Answer generates a grounded answer and records the exchange in the session.
// History is only written after a successful generation.
func (uc *QAUseCase) Answer(ctx context.Context, req domain.QARequest) (string, error) {
	answer, _, err := uc.answer(ctx, req)
	return answer, err
}

func (uc *QAUseCase) answer(ctx context.Context, req domain.QARequest) (string, int, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return "", 0, domain.WrapError(domain.ErrInvalidInput, "answer question", errors.New("query is required"))
	}
	sessionID := normalizeSessionID(req.SessionID)

	unlock := uc.locks.Lock(sessionID)
	defer unlock()

	history, err := uc.sessions.Recent(ctx, sessionID, uc.opts.HistoryExchanges*2)
	if err != nil {
		return "", 0, fmt.Errorf("load session history: %w", err)
	}
	historyLines := renderHistory(history)

	chunks, err := uc.retriever.Retrieve(ctx, retrievalQuery(historyLines, query), uc.opts.TopK)
	if err != nil {
		return "", 0, fmt.Errorf("retrieve context: %w", err)
	}

	prompt := buildQAPrompt(chunks, historyLines, query)
	answer, err := uc.generate(ctx, prompt)
	if err != nil {
		return "", len(chunks), domain.WrapModelError(domain.ErrGenerationFailure, "generate answer", err)
	}

	now := uc.now().UTC()
	if err := uc.sessions.Append(ctx, sessionID,
		domain.Turn{Role: domain.RoleUser, Content: query, CreatedAt: now},
		domain.Turn{Role: domain.RoleAssistant, Content: answer, CreatedAt: now},
	); err != nil {
		return "", len(chunks), fmt.Errorf("append session history: %w", err)
	}

	return answer, len(chunks), nil
}

func (uc *QAUseCase) generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, uc.opts.ModelCallTimeout)
	defer cancel()
	return uc.generator.GenerateFromPrompt(callCtx, prompt, domain.GenerateOptions{Temperature: uc.opts.Temperature})
}

func normalizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.DefaultSessionID
	}
	return id
}

func renderHistory(turns []domain.Turn) []string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Role, content))
	}
	return lines
}

func retrievalQuery(historyLines []string, query string) string {
	if len(historyLines) == 0 {
		return query
	}
	return strings.Join(historyLines, "\n") + "\nUser: " + query
}

func buildQAPrompt(chunks []domain.RetrievedChunk, historyLines []string, query string) string {
	contextLines := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		contextLines = append(contextLines, fmt.Sprintf("[%d] (source: %s)\n%s", i+1, chunk.Source, strings.TrimSpace(chunk.Text)))
	}
	if len(contextLines) == 0 {
		contextLines = append(contextLines, "(no matching documents)")
	}
	if len(historyLines) == 0 {
		historyLines = []string{"(empty)"}
	}

	return fmt.Sprintf(`Use the following context to answer the query. Be grounded in the documents.
If the context does not contain the answer, say that the documents do not cover it.

Context:
%s

History:
%s

Query: %s
Answer:`, strings.Join(contextLines, "\n\n"), strings.Join(historyLines, "\n"), query)
}
