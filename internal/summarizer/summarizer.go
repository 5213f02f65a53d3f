// Package summarizer condenses extracted report text into a handful of sentences.
package summarizer

import (
	"context"
	"fmt"

	"github.com/ryosukesatoh/weekly-report/internal/config"
	"github.com/ryosukesatoh/weekly-report/internal/llm"
)

// New creates a new summarizer based on the configuration
func New(ctx context.Context, cfg *config.Config) (Summarizer, error) {
	switch cfg.Summarizer {
	case "", "lexrank":
		return NewLexRank(cfg.SummarySentences), nil
	case "gemini":
		p, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{
			APIKey:      cfg.Gemini.APIKey,
			Model:       cfg.Gemini.Model,
			Temperature: 0.2,
		})
		if err != nil {
			return nil, err
		}
		return &Abstractive{Generator: p, Sentences: cfg.SummarySentences, Language: cfg.TargetLanguage, Method: "gemini"}, nil
	case "anthropic":
		p, err := llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey:    cfg.Anthropic.APIKey,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return &Abstractive{Generator: p, Sentences: cfg.SummarySentences, Language: cfg.TargetLanguage, Method: "anthropic"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSummarizerType, cfg.Summarizer)
	}
}

// ErrUnsupportedSummarizerType is returned when an unsupported summarizer type is specified
var ErrUnsupportedSummarizerType = fmt.Errorf("unsupported summarizer type")
