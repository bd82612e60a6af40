package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/alerts"
	"github.com/mindwell/sentinel/internal/assessment"
	"github.com/mindwell/sentinel/internal/baseline"
	"github.com/mindwell/sentinel/internal/bot"
	"github.com/mindwell/sentinel/internal/concern"
	"github.com/mindwell/sentinel/internal/pipeline"
	"github.com/mindwell/sentinel/internal/risk"
	"github.com/mindwell/sentinel/internal/scorer"
	"github.com/mindwell/sentinel/internal/sensitivity"
	"github.com/mindwell/sentinel/internal/server"
	"github.com/mindwell/sentinel/internal/storage"
	"github.com/mindwell/sentinel/internal/temporal"
	"github.com/mindwell/sentinel/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		}
		store, err = storage.NewPostgresStorage(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// The contextual scorer fails over to keyword matching when the backend
	// is unreachable.
	primary := scorer.NewOpenAIScorer(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.BaseURL,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		cfg.Monitor.ScorerTimeout,
		logger,
	)
	sc := scorer.NewFailover(primary, scorer.NewKeywordScorer(), logger)

	sm := sensitivity.NewManager(store, logger)
	if err := sm.Load(context.Background()); err != nil {
		logger.Fatal("Failed to load threshold config", zap.Error(err))
	}

	profiler := baseline.NewProfiler(store, sc, cfg.Monitor.PassiveSessions, logger)
	detector := concern.NewDetector(store, logger)
	crisisFlow := assessment.NewCrisisFlow(store, logger)
	scheduler := assessment.NewScheduler(store, crisisFlow, cfg.Monitor.AssessmentInterval, cfg.Monitor.FlaggedInterval, logger)
	dispatcher := alerts.NewDispatcher(store, logger)

	processor := pipeline.NewProcessor(
		store,
		sc,
		profiler,
		detector,
		temporal.NewAnalyzer(),
		risk.NewCalculator(logger),
		sm,
		scheduler,
		crisisFlow,
		dispatcher,
		cfg.Monitor.ScorerTimeout,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sm.Run(ctx, cfg.Monitor.RecalibrationInterval)

	if cfg.Telegram.Enabled {
		b, err := bot.New(cfg.Telegram.Token, processor, crisisFlow, logger)
		if err != nil {
			logger.Fatal("Failed to create bot", zap.Error(err))
		}
		go func() {
			if err := b.Start(); err != nil {
				logger.Fatal("Bot error", zap.Error(err))
			}
		}()
	}

	srv := server.NewServer(processor, store, sm, scheduler, crisisFlow, profiler, logger)
	if err := srv.Run(cfg.Server.Address); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}
