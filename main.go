package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hopline-ai/hopline/internal/answer"
	"github.com/hopline-ai/hopline/internal/circuitbreaker"
	"github.com/hopline-ai/hopline/internal/config"
	"github.com/hopline-ai/hopline/internal/embeddings"
	"github.com/hopline-ai/hopline/internal/health"
	"github.com/hopline-ai/hopline/internal/httpapi"
	"github.com/hopline-ai/hopline/internal/ledger"
	"github.com/hopline-ai/hopline/internal/llm"
	"github.com/hopline-ai/hopline/internal/memory"
	"github.com/hopline-ai/hopline/internal/multihop"
	"github.com/hopline-ai/hopline/internal/retriever"
	"github.com/hopline-ai/hopline/internal/tracing"
	"github.com/hopline-ai/hopline/internal/vectordb"
)

func main() {
	ctx := context.Background()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	circuitbreaker.StartMetricsCollection()

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		logger.Warn("Tracing initialization failed, continuing without traces", zap.Error(err))
	}

	// Metrics endpoint on its own port so the API port stays clean
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("Metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// Optional Redis tier for the embedding cache
	var redisCache *embeddings.RedisCache
	var redisWrapper *circuitbreaker.RedisWrapper
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		redisWrapper = circuitbreaker.NewRedisWrapper(client, logger)
		redisCache = embeddings.NewRedisCache(redisWrapper, cfg.Redis.TTL)
		logger.Info("Redis embedding cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	embedder := embeddings.NewService(cfg.Embedding, redisCache, logger)
	vector := vectordb.NewClient(cfg.Pinecone, embedder, logger)
	if !cfg.Pinecone.Configured() {
		logger.Warn("Vector index not configured, retrieval will return empty results")
	}

	store, err := ledger.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to open feedback ledger", zap.Error(err))
	}
	defer store.Close()
	store = store.WithCorrectionSink(embedder, vector)

	prompts, err := llm.LoadPrompts(os.Getenv("PROMPTS_PATH"))
	if err != nil {
		logger.Warn("Failed to load prompt overrides, using defaults", zap.Error(err))
		prompts = llm.DefaultPrompts()
	}
	provider := llm.NewClient(cfg.OpenAI, logger)

	hybrid := retriever.New(vector, store, logger)
	controller := multihop.New(hybrid, store, provider, prompts, cfg.Retrieval.MaxHops, logger)
	window := memory.NewWindow(cfg.Retrieval.ConversationWindow)

	// Hot-reloadable similarity threshold
	watcher, err := config.NewWatcher(configPath, cfg.Retrieval.SimilarityThreshold, logger)
	if err != nil {
		logger.Fatal("Failed to start config watcher", zap.Error(err))
	}
	defer watcher.Stop()

	orchestrator := answer.New(controller, store, provider, prompts, window,
		watcher.SimilarityThreshold, logger)

	checks := health.NewManager(5*time.Second, logger)
	checks.Register(health.NewFuncChecker("ledger", true, store.Ping))
	checks.Register(health.NewFuncChecker("vector_index", false, func(context.Context) error {
		if !cfg.Pinecone.Configured() {
			return fmt.Errorf("vector index not configured")
		}
		return nil
	}))
	if redisWrapper != nil {
		checks.Register(health.NewRedisChecker(redisWrapper))
	}

	limiter := httpapi.NewClientLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	api := httpapi.New(orchestrator, store, checks, logger)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux, limiter)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("API server listening",
			zap.String("addr", srv.Addr),
			zap.Int("max_hops", cfg.Retrieval.MaxHops),
			zap.Float64("similarity_threshold", cfg.Retrieval.SimilarityThreshold),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown failed", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}
