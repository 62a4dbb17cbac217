package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	"go.opentelemetry.io/otel/attribute"

	"github.com/footylab/nrl-tipping/external/nrldraw"
	"github.com/footylab/nrl-tipping/external/oddsapi"
	"github.com/footylab/nrl-tipping/internal/config"
	"github.com/footylab/nrl-tipping/internal/infrastructure/repository/postgres"
	"github.com/footylab/nrl-tipping/internal/platform/cache"
	"github.com/footylab/nrl-tipping/internal/platform/logging"
	"github.com/footylab/nrl-tipping/internal/platform/resilience"
	"github.com/footylab/nrl-tipping/internal/platform/timeutil"
	"github.com/footylab/nrl-tipping/internal/usecase"
)

// Engine bundles the wired services that make up the tipping engine.
type Engine struct {
	DB       *sqlx.DB
	Sync     *usecase.SyncService
	Tips     *usecase.TipService
	Scoring  *usecase.ScoringService
	Ladder   *usecase.LadderService
	AutoTips *usecase.AutoTipService
	Worker   *usecase.ScoreWorker

	logger *logging.Logger
}

func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.Default()
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fixtureRepo := postgres.NewFixtureRepository(db)
	tipRepo := postgres.NewTipRepository(db)
	userRepo := postgres.NewUserRepository(db)
	predictionRepo := postgres.NewPredictionRepository(db)
	settingsRepo := postgres.NewSettingsRepository(db)

	var store *cache.Store
	if cfg.CacheEnabled {
		store = cache.NewStore(cfg.CacheTTL)
	}

	autoTips := usecase.NewAutoTipService(fixtureRepo, tipRepo, userRepo, cfg.TipLockWindow, logger)
	scoring := usecase.NewScoringService(tipRepo, fixtureRepo, store, logger)
	tips := usecase.NewTipService(fixtureRepo, tipRepo, cfg.TipLockWindow, logger)
	ladderSvc := usecase.NewLadderService(
		fixtureRepo,
		predictionRepo,
		userRepo,
		timeutil.ResolveLocation(cfg.Timezone),
		logger,
	)

	oddsClient := oddsapi.NewClient(oddsapi.ClientConfig{
		BaseURL:    cfg.OddsAPIBaseURL,
		APIKey:     cfg.OddsAPIKey,
		SportKey:   cfg.OddsAPISportKey,
		Region:     cfg.OddsAPIRegion,
		Timeout:    cfg.OddsAPITimeout,
		MaxRetries: cfg.OddsAPIMaxRetries,
		Logger:     logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.OddsAPICircuitEnabled,
			FailureThreshold: cfg.OddsAPICircuitFailureCount,
			OpenTimeout:      cfg.OddsAPICircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.OddsAPICircuitHalfOpenMaxReq,
		},
	})

	var drawProvider usecase.DrawProvider
	if cfg.DrawEnabled {
		drawProvider = nrldraw.NewClient(nrldraw.ClientConfig{
			BaseURL:       cfg.DrawBaseURL,
			CompetitionID: cfg.DrawCompetitionID,
			MaxRound:      cfg.MaxRound,
			Concurrency:   cfg.DrawConcurrency,
			Timeout:       cfg.DrawTimeout,
			Logger:        logger,
		})
	}

	sync := usecase.NewSyncService(
		usecase.SyncConfig{
			APIKeySet:       cfg.OddsAPIEnabled && cfg.OddsAPIKey != "",
			ScoresDaysBack:  cfg.ScoresDaysBack,
			RoundGap:        cfg.RoundGap,
			DrawMatchWindow: cfg.DrawMatchWindow,
			MaxRound:        cfg.MaxRound,
			MinScoreAge:     cfg.MinScoreAge,
			RawDownloadDir:  cfg.RawDownloadDir,
		},
		oddsClient,
		drawProvider,
		fixtureRepo,
		settingsRepo,
		autoTips,
		scoring,
		logger,
	)

	worker := usecase.NewScoreWorker(cfg.ScoreWorkerInterval, func(ctx context.Context) error {
		_, err := sync.UpdateCompletedScores(ctx, cfg.SeasonYear, usecase.CatchupOptions{})
		return err
	}, logger)

	return &Engine{
		DB:       db,
		Sync:     sync,
		Tips:     tips,
		Scoring:  scoring,
		Ladder:   ladderSvc,
		AutoTips: autoTips,
		Worker:   worker,
		logger:   logger,
	}, nil
}

func (e *Engine) Close() error {
	if e.Worker != nil {
		e.Worker.Stop()
	}
	if e.DB != nil {
		return e.DB.Close()
	}
	return nil
}

func openDB(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	dsn := normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary)

	opts := []otelsql.Option{
		otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	}
	if name := dbNameFromURL(cfg.DBURL); name != "" {
		opts = append(opts, otelsql.WithDBName(name))
	}

	db, err := otelsqlx.Open("postgres", dsn, opts...)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}
