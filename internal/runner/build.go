package runner

import (
	"context"
	"io"
	"log/slog"

	"github.com/ryosukesatoh/weekly-report/internal/config"
	"github.com/ryosukesatoh/weekly-report/internal/extract"
	"github.com/ryosukesatoh/weekly-report/internal/fetcher"
	"github.com/ryosukesatoh/weekly-report/internal/llm"
	"github.com/ryosukesatoh/weekly-report/internal/logging"
	"github.com/ryosukesatoh/weekly-report/internal/publisher"
	"github.com/ryosukesatoh/weekly-report/internal/state"
	"github.com/ryosukesatoh/weekly-report/internal/summarizer"
	"github.com/ryosukesatoh/weekly-report/internal/translator"
)

// Flags are the command line switches that shape a run.
type Flags struct {
	DryRun      bool
	NoTranslate bool
	Force       bool
}

// Build wires a Runner from configuration. Unless this is a dry run, the
// sending settings are validated first so that missing secrets fail before
// any network I/O. Dry runs never construct the email publisher; the digest
// is written to out instead.
func Build(ctx context.Context, cfg *config.Config, flags Flags, out io.Writer, logger *slog.Logger) (*Runner, error) {
	logger = logging.OrDefault(logger)

	if !flags.DryRun {
		if err := cfg.ValidateForSend(); err != nil {
			return nil, stageErr(StageConfig, err)
		}
	}

	f, err := fetcher.New(cfg, logger)
	if err != nil {
		return nil, stageErr(StageFetch, err)
	}

	sum, err := summarizer.New(ctx, cfg)
	if err != nil {
		return nil, stageErr(StageConfig, err)
	}

	var tr translator.Translator = translator.Nop{}
	switch {
	case flags.NoTranslate || cfg.NoTranslate:
		logger.Info("translation disabled")
	case !cfg.TranslationEnabled():
		logger.Info("translation disabled, GOOGLE_API_KEY not set")
	default:
		gen, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{APIKey: cfg.Gemini.APIKey, Model: cfg.Gemini.Model})
		if err != nil {
			return nil, stageErr(StageConfig, err)
		}
		tr = &translator.LLM{Generator: gen}
	}

	var (
		pub     publisher.Publisher
		mirrors []publisher.Publisher
	)
	if flags.DryRun {
		pub = publisher.NewStdoutPublisher(out, cfg.Email.Subject, cfg.Email.Highlight)
	} else {
		email, err := publisher.NewEmailPublisher(publisher.EmailConfig{
			Host:      cfg.Email.SMTPServer,
			Port:      cfg.Email.SMTPPort,
			Password:  cfg.Email.Password,
			From:      cfg.Email.Sender,
			To:        cfg.Email.Receiver,
			Subject:   cfg.Email.Subject,
			CAFile:    cfg.Email.CAFile,
			Highlight: cfg.Email.Highlight,
		}, logger)
		if err != nil {
			return nil, stageErr(StageConfig, err)
		}
		pub = email
		if cfg.Discord.WebhookURL != "" {
			mirrors = append(mirrors, publisher.NewDiscordPublisher(cfg.Discord.WebhookURL, cfg.Email.Subject, cfg.Email.Highlight))
		}
	}

	openState := state.Open
	if flags.DryRun {
		openState = state.OpenReadOnly
	}
	store, err := openState(ctx, cfg.StatePath)
	if err != nil {
		return nil, stageErr(StageConfig, err)
	}

	return New(Options{
		Fetcher:        f,
		Extractor:      extract.Default(logger),
		Summarizer:     sum,
		Translator:     tr,
		Publisher:      pub,
		Mirrors:        mirrors,
		Store:          store,
		TargetLanguage: cfg.TargetLanguage,
		DirectURL:      cfg.DirectPDFURL,
		DryRun:         flags.DryRun,
		Force:          flags.Force,
		Logger:         logger,
	}), nil
}

// Close releases the delivery state store.
func (r *Runner) Close() error {
	if r.opts.Store == nil {
		return nil
	}
	return r.opts.Store.Close()
}
