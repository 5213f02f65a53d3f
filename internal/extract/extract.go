// Package extract turns downloaded PDF reports into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/ryosukesatoh/weekly-report/internal/logging"
)

// MinUsefulChars is the amount of non-space text below which an extraction
// is treated as failed and the next extractor is tried.
const MinUsefulChars = 200

// ErrUnavailable is returned by extractors whose backend is not installed.
var ErrUnavailable = errors.New("extract: backend unavailable")

// Extractor returns the text content of a PDF document.
type Extractor interface {
	Text(ctx context.Context, data []byte) (string, error)
}

// PDFExtractor reads text page by page with a pure Go PDF parser.
type PDFExtractor struct{}

func (PDFExtractor) Text(ctx context.Context, data []byte) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract: malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract: open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract: page %d: %w", i, err)
		}
		sb.WriteString(pageText)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// PopplerExtractor shells out to pdftotext.
type PopplerExtractor struct {
	Binary string
}

func (e PopplerExtractor) Text(ctx context.Context, data []byte) (string, error) {
	bin := e.Binary
	if bin == "" {
		bin = "pdftotext"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, bin, err)
	}

	tmp, err := os.CreateTemp("", "report-*.pdf")
	if err != nil {
		return "", fmt.Errorf("extract: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("extract: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("extract: close temp file: %w", err)
	}

	out, err := exec.CommandContext(ctx, path, "-layout", "-enc", "UTF-8", tmp.Name(), "-").Output()
	if err != nil {
		return "", fmt.Errorf("extract: pdftotext failed: %w", err)
	}
	return string(out), nil
}

// Chain tries each extractor in order and keeps the first result with at
// least MinUsefulChars of text. Otherwise the longest result wins.
type Chain struct {
	Extractors []Extractor
	Logger     *slog.Logger
}

// Default returns the pure Go parser backed by pdftotext.
func Default(logger *slog.Logger) *Chain {
	return &Chain{
		Extractors: []Extractor{PDFExtractor{}, PopplerExtractor{}},
		Logger:     logger,
	}
}

func (c *Chain) Text(ctx context.Context, data []byte) (string, error) {
	logger := logging.OrDefault(c.Logger)

	var (
		best    string
		lastErr error
	)
	for _, e := range c.Extractors {
		text, err := e.Text(ctx, data)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Debug("extractor failed", "extractor", fmt.Sprintf("%T", e), "err", err)
			lastErr = err
			continue
		}
		text = Normalize(text)
		if usefulChars(text) >= MinUsefulChars {
			return text, nil
		}
		if len(text) > len(best) {
			best = text
		}
	}

	if strings.TrimSpace(best) != "" {
		return best, nil
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", nil
}

var (
	hyphenBreak   = regexp.MustCompile(`-\n`)
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	spaceRuns     = regexp.MustCompile(`[ \t]{2,}`)
)

// Normalize repairs common PDF extraction artefacts: words split by a
// hyphen at line end, trailing blanks and runs of spaces.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = hyphenBreak.ReplaceAllString(text, "")
	text = trailingSpace.ReplaceAllString(text, "\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func usefulChars(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
