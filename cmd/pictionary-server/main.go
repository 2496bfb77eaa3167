package main

import (
	"context"
	"log"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/ai-pictionary/internal/catalog"
	appcfg "github.com/park285/ai-pictionary/internal/config"
	"github.com/park285/ai-pictionary/internal/events"
	"github.com/park285/ai-pictionary/internal/judge"
	"github.com/park285/ai-pictionary/internal/obslog"
	"github.com/park285/ai-pictionary/internal/server"
	"github.com/park285/ai-pictionary/internal/session"
	"github.com/park285/ai-pictionary/internal/stats"
	"github.com/park285/ai-pictionary/internal/vision"
)

func main() {
	cfg, err := appcfg.LoadServer()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log.Options()); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		logger.Fatal("catalog_load_failed", zap.Error(err))
	}

	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := stats.Open(sctx, cfg.StatsBackend, backendURL(cfg))
	cancel()
	if err != nil {
		logger.Fatal("stats_open_failed", zap.String("backend", cfg.StatsBackend), zap.Error(err))
	}
	defer store.Close()

	pub, err := events.Open(cfg.NATSURL)
	if err != nil {
		// game-end events are optional; keep serving without them
		logger.Warn("events_disabled", zap.Error(err))
		pub = events.Nop{}
	}
	defer pub.Close()

	vc := vision.NewClient(cfg.VisionBaseURL,
		vision.WithAPIKey(cfg.VisionAPIKey),
		vision.WithModel(cfg.VisionModel),
		vision.WithTimeout(cfg.VisionTimeout),
		vision.WithRetry(cfg.VisionRetries),
		vision.WithRateLimit(cfg.VisionRateLimit, cfg.VisionBurst),
		vision.WithMaxConnsPerHost(cfg.VisionMaxConns),
	)
	dispatcher := judge.New(vc, judge.Config{
		Workers:     cfg.JudgeWorkers,
		Queue:       cfg.JudgeQueue,
		Timeout:     cfg.JudgeTimeout,
		Instruction: vision.Instruction(cat.Targets()),
	})

	coord := session.New(session.Deps{
		Stats:        store,
		Judge:        dispatcher,
		Selector:     catalog.NewRandomSelector(cat, rand.New(rand.NewSource(time.Now().UnixNano()))),
		Events:       pub,
		Catalog:      cat,
		WriteTimeout: 10 * time.Second,
	})

	logger.Info("server_start",
		zap.Int("targets", cat.Len()),
		zap.String("stats", cfg.StatsBackend),
		zap.String("model", cfg.VisionModel),
		zap.Int("workers", cfg.JudgeWorkers),
	)
	srv := server.New(server.Config{ListenAddr: cfg.ListenAddr, WSAddr: cfg.WSAddr, MaxFrame: cfg.MaxFrame}, coord)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server_stopped", zap.Error(err))
	}

	dctx, dcancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer dcancel()
	if err := dispatcher.Close(dctx); err != nil {
		logger.Warn("judge_drain_incomplete", zap.Error(err))
	}
	logger.Info("server_exit")
}

func backendURL(cfg *appcfg.ServerConfig) string {
	switch cfg.StatsBackend {
	case appcfg.BackendRedis:
		return cfg.RedisURL
	case appcfg.BackendPostgres:
		return cfg.DatabaseURL
	default:
		return ""
	}
}
