// Package llm wraps the hosted language models used for abstractive
// summaries and translation.
package llm

import "context"

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
