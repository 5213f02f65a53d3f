package summarizer

import (
	"context"
	"strings"
	"time"
)

// Digest is the summary of one report, ready to publish.
type Digest struct {
	SourceURL string    `json:"source_url"`
	Date      time.Time `json:"date"`
	Language  string    `json:"language"`
	Method    string    `json:"method"`
	// Sentences holds the summary in publication language, at most the configured count.
	Sentences []string `json:"sentences"`
	// Original is the summary before translation. Equal to Text() when untranslated.
	Original []string `json:"original"`
}

// Text joins the summary sentences.
func (d *Digest) Text() string {
	return strings.Join(d.Sentences, " ")
}

// Empty reports whether the digest has no content worth sending.
func (d *Digest) Empty() bool {
	return strings.TrimSpace(d.Text()) == ""
}

// Summarizer reduces report text to a short digest.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (*Digest, error)
}
