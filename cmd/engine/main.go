package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	sonic "github.com/bytedance/sonic"

	"github.com/footylab/nrl-tipping/internal/app"
	"github.com/footylab/nrl-tipping/internal/config"
	"github.com/footylab/nrl-tipping/internal/observability"
	"github.com/footylab/nrl-tipping/internal/platform/logging"
	"github.com/footylab/nrl-tipping/internal/usecase"
)

func main() {
	runSync := flag.Bool("sync", false, "run one full season sync and exit")
	runCatchup := flag.Bool("catchup", false, "run one score catch-up pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.NewJSON(cfg.LogLevel)
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	shutdownUptrace, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownUptrace(ctx); err != nil {
			logger.Error("shutdown uptrace", "error", err)
		}
	}()

	stopPyroscope, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		logger.Error("init pyroscope", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := stopPyroscope(); err != nil {
			logger.Error("stop pyroscope", "error", err)
		}
	}()

	pprofSrv, err := observability.StartPprofServer(cfg, logger)
	if err != nil {
		logger.Error("start pprof server", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := observability.StopPprofServer(pprofSrv, logger, 5*time.Second); err != nil {
			logger.Error("stop pprof server", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("build engine", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("close engine", "error", err)
		}
	}()

	switch {
	case *runSync:
		summary, err := engine.Sync.SyncSeason(ctx, usecase.SyncInput{SeasonYear: cfg.SeasonYear})
		if err != nil {
			logger.Error("season sync failed", "season_year", cfg.SeasonYear, "error", err)
			os.Exit(1)
		}
		printJSON(logger, summary)
	case *runCatchup:
		result, err := engine.Sync.UpdateCompletedScores(ctx, cfg.SeasonYear, usecase.CatchupOptions{})
		if err != nil {
			logger.Error("score catch-up failed", "season_year", cfg.SeasonYear, "error", err)
			os.Exit(1)
		}
		printJSON(logger, result)
	default:
		engine.Worker.Start(ctx)
		logger.Info("score worker running",
			"season_year", cfg.SeasonYear,
			"interval", cfg.ScoreWorkerInterval.String(),
		)
		<-ctx.Done()
		engine.Worker.Stop()
		logger.Info("score worker stopped")
	}
}

func printJSON(logger *logging.Logger, v any) {
	encoded, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Error("encode output", "error", err)
		return
	}
	os.Stdout.Write(append(encoded, '\n'))
}
