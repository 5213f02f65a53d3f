package publisher

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ryosukesatoh/weekly-report/internal/summarizer"
)

// StdoutPublisher prints the digest instead of sending it. Used for dry runs.
type StdoutPublisher struct {
	w         io.Writer
	subject   string
	highlight []string
}

// NewStdoutPublisher writes to w, or os.Stdout when w is nil.
func NewStdoutPublisher(w io.Writer, subject string, highlight []string) *StdoutPublisher {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutPublisher{w: w, subject: subject, highlight: highlight}
}

func (p *StdoutPublisher) Publish(_ context.Context, digest *summarizer.Digest) error {
	text, err := renderText(newReportView(p.subject, digest, p.highlight))
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(strings.Repeat("=", 72) + "\n")
	fmt.Fprintf(&sb, "DRY RUN: email not sent (%d sentences, %s, %s)\n", len(digest.Sentences), digest.Method, digest.Language)
	sb.WriteString(strings.Repeat("=", 72) + "\n")
	sb.WriteString(text)
	if len(digest.Original) > 0 && !equalSentences(digest.Original, digest.Sentences) {
		sb.WriteString(strings.Repeat("-", 72) + "\n")
		sb.WriteString("Original:\n")
		for _, s := range digest.Original {
			sb.WriteString(s + "\n")
		}
	}
	sb.WriteString(strings.Repeat("=", 72) + "\n")

	_, err = io.WriteString(p.w, sb.String())
	return err
}

func equalSentences(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
