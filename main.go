package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"crypto-signal-service/config"
	"crypto-signal-service/internal/analyzer"
	"crypto-signal-service/internal/api"
	"crypto-signal-service/internal/llm"
	"crypto-signal-service/internal/logging"
	"crypto-signal-service/internal/market"
	"crypto-signal-service/internal/scanner"
	"crypto-signal-service/internal/store"
	"crypto-signal-service/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(logging.Config{})
		bootLogger.Fatal().Err(err).Msg("configuration invalid")
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Console: cfg.Log.Console})
	logger.Info().Msg("crypto-signal-service starting")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Store
	pool, err := store.Connect(rootCtx, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	repo := store.NewRepository(pool, logger)
	repo.StartPurgeLoop(rootCtx)

	// Optional redis: cooldowns and the LLM response cache degrade to
	// in-memory equivalents without it
	var (
		llmCache llm.ResponseCache
		cooldown scanner.Cooldown
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		llmCache = llm.NewRedisCache(rdb, logger)
		cooldown = scanner.NewRedisCooldown(rdb, logger)
	}

	// Gateway
	marketCfg := market.DefaultClientConfig()
	marketCfg.BaseURL = cfg.Market.RESTBaseURL
	marketCfg.WSBaseURL = cfg.Market.WSBaseURL
	client := market.NewClient(marketCfg, logger)
	streams := market.NewStreamManager(cfg.Market.WSBaseURL, client, logger)

	// Model
	model := llm.NewClient(llm.Config{
		Provider: llm.Provider(cfg.LLM.Provider),
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	}, llmCache, logger)

	// Tracker
	trackerCfg := tracker.DefaultConfig()
	trackerCfg.TieBreakSLWins = cfg.Tracker.TieBreakSLWins
	trk := tracker.New(trackerCfg, repo, streams, logger)
	if err := trk.Start(rootCtx); err != nil {
		logger.Fatal().Err(err).Msg("tracker start failed")
	}

	// Orchestrator
	an := analyzer.New(analyzer.DefaultConfig(), client, model, repo, trk, logger)

	// Scanners
	var scan *scanner.Scanner
	if cfg.Scanner.Enabled {
		scanCfg := scanner.DefaultConfig()
		scanCfg.VolumeFloor = cfg.Scanner.VolumeFloor
		scanCfg.UserIDs = cfg.Scanner.UserIDs
		scan = scanner.New(scanCfg, client, an, cooldown, logger)
		scan.Start(rootCtx)
	} else {
		scan = scanner.New(scanner.DefaultConfig(), client, an, cooldown, logger)
	}

	// API
	server := api.NewServer(api.Config{Addr: cfg.API.Addr}, an, repo, trk, scan, streams, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api server failed")
			rootCancel()
		}
	}()

	waitForShutdown(logger)

	// Shutdown order: stop intake, drain in-flight work, close streams,
	// flush the pool
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("api shutdown incomplete")
	}
	if cfg.Scanner.Enabled {
		scan.Stop()
	}
	rootCancel()
	trk.Stop()
	streams.Close()
	pool.Close()
	logger.Info().Msg("shutdown complete")
}

func waitForShutdown(logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
}
