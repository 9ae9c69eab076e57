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

const defaultSummaryLength = "concise"

type SummarizerOptions struct {
	MaxInputRunes    int
	Temperature      float64
	ModelCallTimeout time.Duration
}

type Summarizer struct {
	generator ports.TextGenerator
	opts      SummarizerOptions
}

func NewSummarizer(generator ports.TextGenerator, opts SummarizerOptions) *Summarizer {
	if opts.MaxInputRunes <= 0 {
		opts.MaxInputRunes = 4000
	}
	if opts.ModelCallTimeout <= 0 {
		opts.ModelCallTimeout = 120 * time.Second
	}
	return &Summarizer{generator: generator, opts: opts}
}

func (s *Summarizer) Summarize(ctx context.Context, text, length string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "summarize", errors.New("text is empty"))
	}
	length = strings.TrimSpace(length)
	if length == "" {
		length = defaultSummaryLength
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.ModelCallTimeout)
	defer cancel()

	prompt := buildSummaryPrompt(truncateRunes(text, s.opts.MaxInputRunes), length)
	summary, err := s.generator.GenerateFromPrompt(callCtx, prompt, domain.GenerateOptions{Temperature: s.opts.Temperature})
	if err != nil {
		return "", domain.WrapModelError(domain.ErrGenerationFailure, "summarize", err)
	}
	return strings.TrimSpace(summary), nil
}

func buildSummaryPrompt(text, length string) string {
	return fmt.Sprintf("Summarize this medical text in a %s way. Do not add or omit facts:\n\n%s", length, text)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
