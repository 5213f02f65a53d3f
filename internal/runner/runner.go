package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ryosukesatoh/weekly-report/internal/extract"
	"github.com/ryosukesatoh/weekly-report/internal/fetcher"
	"github.com/ryosukesatoh/weekly-report/internal/logging"
	"github.com/ryosukesatoh/weekly-report/internal/publisher"
	"github.com/ryosukesatoh/weekly-report/internal/state"
	"github.com/ryosukesatoh/weekly-report/internal/summarizer"
	"github.com/ryosukesatoh/weekly-report/internal/translator"
)

// Stage names a pipeline step for error classification.
type Stage string

const (
	StageConfig    Stage = "config"
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageSummarize Stage = "summarize"
	StageSend      Stage = "send"
)

// StageError reports which pipeline step failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Options wires the pipeline. Fetcher, Extractor, Summarizer and Publisher
// are required.
type Options struct {
	Fetcher    fetcher.Fetcher
	Extractor  extract.Extractor
	Summarizer summarizer.Summarizer
	Translator translator.Translator
	// Publisher delivers the digest: email, or the preview writer on dry runs.
	Publisher publisher.Publisher
	// Mirrors receive the digest after a successful delivery. Their failures are logged.
	Mirrors []publisher.Publisher
	// Store deduplicates deliveries. Nil disables the check.
	Store          state.Store
	TargetLanguage string
	// DirectURL skips the listing page.
	DirectURL string
	DryRun    bool
	Force     bool
	Logger    *slog.Logger
	Now       func() time.Time
}

// Runner orchestrates the locate -> download -> extract -> summarize ->
// translate -> publish pipeline for one report.
type Runner struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func New(opts Options) *Runner {
	r := &Runner{opts: opts, logger: logging.OrDefault(opts.Logger), now: opts.Now}
	if r.now == nil {
		r.now = time.Now
	}
	if r.opts.Translator == nil {
		r.opts.Translator = translator.Nop{}
	}
	return r
}

// Run executes the full pipeline once. Finding no report, or finding one that
// was already delivered, is not an error.
func (r *Runner) Run(ctx context.Context) error {
	reportURL, err := r.locate(ctx)
	if errors.Is(err, fetcher.ErrNoReport) {
		r.logger.Info("no report found, nothing to send")
		return nil
	}
	if err != nil {
		return stageErr(StageFetch, err)
	}
	r.logger.Info("report selected", "url", reportURL)

	if r.alreadySent(ctx, reportURL) {
		r.logger.Info("report already sent, skipping", "url", reportURL)
		return nil
	}

	report, err := r.opts.Fetcher.Download(ctx, reportURL)
	if err != nil {
		return stageErr(StageFetch, err)
	}

	text, err := r.opts.Extractor.Text(ctx, report.Body)
	if err != nil {
		return stageErr(StageExtract, err)
	}
	if strings.TrimSpace(text) == "" {
		return stageErr(StageExtract, errors.New("no text could be extracted from the report"))
	}
	r.logger.Debug("text extracted", "chars", len(text))

	digest, err := r.opts.Summarizer.Summarize(ctx, text)
	if err != nil {
		return stageErr(StageSummarize, err)
	}
	if digest == nil || digest.Empty() {
		return stageErr(StageExtract, errors.New("summary is empty"))
	}
	digest.SourceURL = reportURL
	digest.Date = r.now()
	r.logger.Info("summary ready", "sentences", len(digest.Sentences), "method", digest.Method)

	if translated, err := translator.Apply(ctx, r.opts.Translator, digest, r.opts.TargetLanguage); err != nil {
		r.logger.Warn("translation failed, sending untranslated summary", "err", err)
	} else if translated {
		r.logger.Info("summary translated", "language", digest.Language)
	}

	if err := r.opts.Publisher.Publish(ctx, digest); err != nil {
		return stageErr(StageSend, err)
	}

	for _, m := range r.opts.Mirrors {
		if err := m.Publish(ctx, digest); err != nil {
			r.logger.Warn("mirror publish failed", "publisher", fmt.Sprintf("%T", m), "err", err)
		}
	}

	if r.opts.DryRun {
		r.logger.Info("dry run complete, state left untouched")
		return nil
	}

	if r.opts.Store != nil {
		if err := r.opts.Store.MarkSent(ctx, reportURL, r.now()); err != nil {
			// The mail is out; a rerun would duplicate it, so make the failure visible.
			r.logger.Error("failed to record delivered report", "url", reportURL, "err", err)
		}
	}
	r.logger.Info("pipeline completed successfully")
	return nil
}

func (r *Runner) locate(ctx context.Context) (string, error) {
	if direct := strings.TrimSpace(r.opts.DirectURL); direct != "" {
		if isDirectPDF(direct) {
			return direct, nil
		}
		r.logger.Warn("ignoring DIRECT_PDF_URL, not an absolute .pdf URL", "url", direct)
	}
	return r.opts.Fetcher.Latest(ctx)
}

func (r *Runner) alreadySent(ctx context.Context, reportURL string) bool {
	if r.opts.Store == nil || r.opts.Force {
		return false
	}
	last, err := r.opts.Store.LastSent(ctx)
	if err != nil {
		r.logger.Warn("could not read delivery state, continuing", "err", err)
		return false
	}
	return last == reportURL
}

func isDirectPDF(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".pdf")
}
