package publisher

import (
	"context"
	"strings"

	"github.com/ryosukesatoh/weekly-report/internal/summarizer"
)

// Publisher publishes a digest to some output destination.
type Publisher interface {
	Publish(ctx context.Context, digest *summarizer.Digest) error
}

// sentence is one summary sentence as rendered in a message.
type sentence struct {
	Text      string
	Highlight bool
}

// markSentences flags the sentences that mention any keyword, ignoring case.
func markSentences(sentences []string, keywords []string) []sentence {
	out := make([]sentence, len(sentences))
	for i, s := range sentences {
		out[i] = sentence{Text: s, Highlight: containsAny(s, keywords)}
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
