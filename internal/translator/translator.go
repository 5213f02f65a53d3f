// Package translator renders summary sentences in the reader's language.
package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ryosukesatoh/weekly-report/internal/llm"
	"github.com/ryosukesatoh/weekly-report/internal/summarizer"
)

// Translator translates sentences into the target language, one output
// sentence per input sentence.
type Translator interface {
	Translate(ctx context.Context, sentences []string, target string) ([]string, error)
}

// Nop returns its input unchanged.
type Nop struct{}

func (Nop) Translate(_ context.Context, sentences []string, _ string) ([]string, error) {
	return sentences, nil
}

// LLM translates with a language model, asking for a JSON array back.
type LLM struct {
	Generator llm.Generator
}

func (t *LLM) Translate(ctx context.Context, sentences []string, target string) ([]string, error) {
	if len(sentences) == 0 {
		return nil, nil
	}

	src, err := json.Marshal(sentences)
	if err != nil {
		return nil, fmt.Errorf("translator: marshal input: %w", err)
	}

	prompt := fmt.Sprintf(`Translate each string of the following JSON array into %s.
Keep disease names, pathogen names and country names accurate, and keep numbers unchanged.
Return a JSON array with exactly %d strings in the same order.
Respond ONLY with valid JSON, no markdown fences or additional text.

%s`, summarizer.LanguageName(target), len(sentences), src)

	body, err := t.Generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("translator: %w", err)
	}

	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	var out []string
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("translator: failed to parse response: %w", err)
	}
	if len(out) != len(sentences) {
		return nil, fmt.Errorf("translator: got %d sentences, want %d", len(out), len(sentences))
	}
	return out, nil
}

// Apply translates the digest in place when its language differs from target.
// It reports whether the digest was changed.
func Apply(ctx context.Context, t Translator, d *summarizer.Digest, target string) (bool, error) {
	if t == nil || target == "" || strings.EqualFold(d.Language, target) || d.Empty() {
		return false, nil
	}

	out, err := t.Translate(ctx, d.Sentences, target)
	if err != nil {
		return false, err
	}
	if _, nop := t.(Nop); nop {
		return false, nil
	}

	d.Original = d.Sentences
	d.Sentences = out
	d.Language = target
	return true, nil
}
