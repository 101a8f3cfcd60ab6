package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"

	"github.com/MendeTr/BatterySim/pkg/config"
	"github.com/MendeTr/BatterySim/pkg/engine"
	"github.com/MendeTr/BatterySim/pkg/log"
	"github.com/MendeTr/BatterySim/pkg/storage"
	"github.com/MendeTr/BatterySim/pkg/tibber"
)

func main() {
	// init packages
	s := storage.Configured()

	configPath := lflag.String("config", "", "Path to the YAML configuration file (built-in defaults when empty)")
	recordsPath := lflag.String("records", "", "Path to the hourly records CSV file (required)")
	persist := lflag.Bool("persist", false, "Persist the run summary and ledger to storage")

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	if *recordsPath == "" {
		log.Ctx(ctx).ErrorContext(ctx, "missing required --records flag")
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "invalid configuration", "error", err)
			os.Exit(1)
		}
	}

	records, err := tibber.LoadFile(ctx, *recordsPath)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load records", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "records loaded",
		slog.Int("count", len(records)),
		slog.String("path", *recordsPath),
	)

	ledger, summary, err := engine.New(*cfg).Run(ctx, records)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "simulation failed", "error", err)
		os.Exit(1)
	}

	if *persist {
		runID, err := s.InsertRun(ctx, summary)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to persist run summary", "error", err)
			os.Exit(1)
		}
		if err := s.InsertLedger(ctx, runID, ledger); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to persist ledger", "error", err)
			os.Exit(1)
		}
		log.Ctx(ctx).InfoContext(ctx, "run persisted", slog.String("runID", runID))
	}

	printReport(os.Stdout, summary)
}
