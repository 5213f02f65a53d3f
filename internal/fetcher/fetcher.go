package fetcher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ryosukesatoh/weekly-report/internal/config"
)

// Report is a downloaded document. It lives for a single run.
type Report struct {
	URL         string
	Body        []byte
	ContentType string
}

// Size returns the document size in bytes.
func (r *Report) Size() int64 {
	return int64(len(r.Body))
}

// Fetcher locates the latest report on a listing page and downloads it.
type Fetcher interface {
	Latest(ctx context.Context) (string, error)
	Download(ctx context.Context, reportURL string) (*Report, error)
}

// ErrNoReport is returned when no link on the listing (or its detail pages) matches.
var ErrNoReport = errors.New("fetcher: no report link found")

// New creates a listing fetcher from the run configuration.
func New(cfg *config.Config, logger *slog.Logger) (*ListingFetcher, error) {
	return NewListingFetcher(Options{
		BaseURL:  cfg.BaseURL,
		Pattern:  cfg.PDFPattern,
		Order:    Order(cfg.LinkOrder),
		MaxBytes: cfg.MaxPDFBytes(),
		Logger:   logger,
	})
}
