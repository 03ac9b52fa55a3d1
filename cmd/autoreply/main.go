// Package main is the entry point for the autoreply platform.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashgrove/autoreply/internal/buildinfo"
	"github.com/ashgrove/autoreply/internal/config"
	"github.com/ashgrove/autoreply/internal/executor"
	"github.com/ashgrove/autoreply/internal/pipeline"
	"github.com/ashgrove/autoreply/internal/task"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.String())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfgPath, err := config.FindConfig(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	// A re-exec'd process-pool worker never reaches the normal startup
	// path below: it builds the same registry the parent built and
	// serves requests over stdin/stdout until the parent closes the pipe.
	if os.Getenv(executor.WorkerEnvVar) != "" {
		registry, _, _, err := pipeline.BuildRegistry(cfg, logger)
		if err != nil {
			logger.Error("worker: build registry", "error", err)
			os.Exit(1)
		}
		if err := executor.RunWorkerMain(registry); err != nil {
			logger.Error("worker: exited with error", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	logger.Info("starting autoreply", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)
	logger.Info("config loaded",
		"path", cfgPath,
		"bots", len(cfg.Bots),
		"executor", cfg.Executor.Type,
		"fetch_mode", cfg.Fetch.Mode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := pipeline.Assemble(ctx, cfg, logger, os.Args[0], os.Args[1:])
	if err != nil {
		logger.Error("failed to assemble application", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", "signal", sig)
		app.Stop()

		// A second signal escalates to an immediate cancel, for an
		// operator who doesn't want to wait out an in-flight step.
		select {
		case sig := <-sigCh:
			logger.Info("second shutdown signal received, cancelling", "signal", sig)
			app.Cancel()
		case <-ctx.Done():
		}
	}()

	runErr := app.Wait()
	cancel()

	if closeErr := app.Close(context.Background()); closeErr != nil {
		logger.Error("error during shutdown", "error", closeErr)
	}

	// Stop/Cancel are the expected outcome of the signal handler above,
	// not a failure; only a genuinely Failed runner should set a
	// non-zero exit code.
	if runErr != nil && !errors.Is(runErr, task.ErrStopped) && !errors.Is(runErr, task.ErrCancelled) {
		logger.Error("application runner failed", "error", runErr)
		os.Exit(1)
	}

	fmt.Fprintln(os.Stdout, "autoreply stopped")
}
