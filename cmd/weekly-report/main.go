// Command weekly-report fetches the latest weekly communicable disease threats
// report, summarises it and emails the summary. It runs once per invocation;
// scheduling is left to the caller (CI workflow, cron).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ryosukesatoh/weekly-report/internal/config"
	"github.com/ryosukesatoh/weekly-report/internal/logging"
	"github.com/ryosukesatoh/weekly-report/internal/runner"
	"github.com/ryosukesatoh/weekly-report/internal/state"
)

const (
	exitOK      = 0
	exitConfig  = 1
	exitProcess = 2
	exitSend    = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("weekly-report", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "optional YAML config file; environment variables take precedence")
	envFile := flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	dryRun := flags.Bool("dry-run", false, "print the summary instead of sending email; state is not updated")
	noTranslate := flags.Bool("no-translate", false, "keep the summary in the source language")
	force := flags.Bool("force", false, "send even if the report was already delivered")
	history := flags.Int("history", -1, "print the last N delivered reports and exit (0 for all)")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}

	if err := loadEnvFile(*envFile, isFlagSet(flags, "env-file")); err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}
	logger := logging.New(cfg.LogLevel, stderr)
	slog.SetDefault(logger)

	if *history >= 0 {
		if err := printHistory(ctx, cfg.StatePath, *history, stdout); err != nil {
			logger.Error("history failed", "err", err)
			return exitConfig
		}
		return exitOK
	}

	r, err := runner.Build(ctx, cfg, runner.Flags{
		DryRun:      *dryRun,
		NoTranslate: *noTranslate,
		Force:       *force,
	}, stdout, logger)
	if err != nil {
		logger.Error("setup failed", "err", err)
		return exitCode(err)
	}
	defer r.Close()

	logger.Info("starting run", "base_url", cfg.BaseURL, "dry_run", *dryRun, "summarizer", cfg.Summarizer)
	if err := r.Run(ctx); err != nil {
		logger.Error("run failed", "err", err)
		return exitCode(err)
	}
	return exitOK
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing default file is fine; a missing explicit one is not.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func isFlagSet(set *flag.FlagSet, name string) bool {
	found := false
	set.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func exitCode(err error) int {
	var se *runner.StageError
	if !errors.As(err, &se) {
		return exitConfig
	}
	switch se.Stage {
	case runner.StageConfig:
		return exitConfig
	case runner.StageSend:
		return exitSend
	default:
		return exitProcess
	}
}

func printHistory(ctx context.Context, path string, limit int, w io.Writer) error {
	store, err := state.OpenReadOnly(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	h, ok := store.(state.Historian)
	if !ok {
		return fmt.Errorf("state store %s keeps no history", path)
	}
	entries, err := h.History(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "no reports sent yet")
		return nil
	}
	for _, e := range entries {
		sent := "-"
		if !e.SentAt.IsZero() {
			sent = e.SentAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s  %s\n", sent, e.URL)
	}
	return nil
}
