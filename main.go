package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/chatlog-reconstruct/cmd"
	"github.com/dhcgn/chatlog-reconstruct/config"
	"github.com/dhcgn/chatlog-reconstruct/metrics"
	"github.com/dhcgn/chatlog-reconstruct/progress"
	"github.com/dhcgn/chatlog-reconstruct/runner"
	"github.com/dhcgn/chatlog-reconstruct/stats"
)

func main() {
	var cleanup func() error

	rootCmd := &cobra.Command{
		Use:   "chatlog-reconstruct",
		Short: "Reconstruct a conversation from two message logs and download its attachments",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging, err := config.LoadLogging(cmd)
			if err != nil {
				return err
			}
			logger, closeLog, err := setupLogger(logging)
			if err != nil {
				return err
			}
			cleanup = closeLog
			slog.SetDefault(logger)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, slog.Default())
		},
	}

	config.RegisterPersistentFlags(rootCmd)
	config.RegisterFlags(rootCmd)
	cmd.AddCommands(rootCmd)

	err := rootCmd.Execute()
	if cleanup != nil {
		_ = cleanup()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	r, err := runner.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}
	logger = logger.With("run", r.RunID())
	logger.Info("starting chatlog-reconstruct", "output", cfg.OutputFolder, "dryRun", cfg.DryRun)

	reporter := stats.NewReporter(r, logger)
	recorder := metrics.New()
	r.Subscribe("metrics", recorder.Record)
	bar := progress.New(cfg.Log.Level)
	r.Subscribe("progress-bar", bar.Update)

	started := time.Now()
	report, err := r.Run(ctx)
	bar.Stop()

	if report != nil && cfg.Preview > 0 {
		cmd.WriteTimeline(os.Stdout, report.Records, cfg.Preview)
	}

	reporter.Log()
	progress.PrintSummary(reporter.Summary(), time.Since(started))

	if cfg.MetricsFile != "" {
		if werr := recorder.WriteFile(cfg.MetricsFile); werr != nil {
			logger.Error("write metrics", "path", cfg.MetricsFile, "err", werr)
		}
	}

	if errors.Is(err, context.Canceled) {
		logger.Warn("reconstruction interrupted")
	}
	return err
}

func setupLogger(cfg config.Logging) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.Level {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	var out io.Writer = os.Stdout
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.Dir, fmt.Sprintf("chatlog-reconstruct-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		out = io.MultiWriter(os.Stdout, file)
		cleanup = func() error {
			return file.Close()
		}
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts)), cleanup, nil
	}
	return slog.New(slog.NewTextHandler(out, opts)), cleanup, nil
}
