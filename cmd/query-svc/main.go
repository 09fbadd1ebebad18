// Package main 福利问答服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/joho/godotenv"

	"benefit-ai-api/internal/application/pipeline"
	"benefit-ai-api/internal/config"
	"benefit-ai-api/internal/infrastructure/embedding"
	"benefit-ai-api/internal/infrastructure/llm"
	"benefit-ai-api/internal/infrastructure/persistence"
	"benefit-ai-api/internal/infrastructure/persistence/milvus"
	"benefit-ai-api/internal/infrastructure/persistence/postgres"
	"benefit-ai-api/internal/infrastructure/persistence/redis"
	"benefit-ai-api/internal/interfaces/http/handler"
	"benefit-ai-api/internal/interfaces/http/middleware"
	"benefit-ai-api/internal/interfaces/http/router"
	"benefit-ai-api/pkg/logger"
	"benefit-ai-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting query-svc",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Postgres 承载关键词检索、关系图与切片存储，是硬依赖
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()

	chunkRepo := postgres.NewChunkRepository(pgClient)
	graphRepo := postgres.NewBenefitGraphRepository(pgClient)

	// Milvus 可选，连不上则向量检索降级
	var vectorAdapter *milvus.VectorAdapter
	var milvusClient *milvus.Client
	milvusClient, err = milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		log.Warn("milvus unavailable, vector retrieval disabled", "error", err.Error())
		milvusClient = nil
	} else {
		defer func() { _ = milvusClient.Close() }()
		vectorAdapter = milvus.NewVectorAdapter(milvus.NewRepository(milvusClient))
	}

	// Redis 可选，连不上则缓存与限流降级
	var redisClient *redis.Client
	var answerCache *redis.AnswerCache
	var rateLimiter middleware.RateLimiter
	redisClient, err = redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		log.Warn("redis unavailable, answer cache and rate limiting disabled", "error", err.Error())
		redisClient = nil
	} else {
		defer func() { _ = redisClient.Close() }()
		answerCache = redis.NewAnswerCache(redisClient)
		rateLimiter = redis.NewRateLimiter(redisClient)
	}

	// Embedding 可选，失败时向量检索与文档索引降级
	var embedder einoembedding.Embedder
	if e, embErr := embedding.NewEinoEmbedder(ctx, &cfg.Embedding); embErr != nil {
		log.Warn("embedder unavailable, vector retrieval disabled", "error", embErr.Error())
	} else {
		embedder = e
	}

	// LLM 生成器，未配置 provider 时流水线退回模板答案
	var generator pipeline.AnswerGenerator
	if len(cfg.LLM.Providers) > 0 {
		generator = llm.NewGenerator(llm.NewEinoFactory(cfg), &cfg.LLM)
	} else {
		log.Warn("no llm provider configured, answers fall back to templates")
	}

	store := persistence.NewEvidenceStore(vectorAdapter, chunkRepo)

	classifier := pipeline.NewClassifier(cfg.Pipeline.MaxQuestionRunes)
	coordinator := pipeline.NewCoordinator(embedder, store, graphRepo, &cfg.Pipeline)
	fuser := pipeline.NewFuser(&cfg.Pipeline)
	synthesizer := pipeline.NewSynthesizer(generator, &cfg.Pipeline)
	orchestrator := pipeline.NewOrchestrator(classifier, coordinator, fuser, synthesizer, &cfg.Pipeline)

	var vectorIndexer pipeline.VectorIndexer
	if vectorAdapter != nil {
		vectorIndexer = vectorAdapter
	}
	indexer := pipeline.NewIndexer(embedder, vectorIndexer, chunkRepo, cfg.Embedding.BatchSize)

	r := router.New(cfg, router.Handlers{
		Health:   handler.NewHealthHandler(pgClient, redisClient, milvusClient),
		Query:    handler.NewQueryHandler(orchestrator, answerCache, cfg.Cache.AnswerTTL),
		Document: handler.NewDocumentHandler(indexer, answerCache),
	}, rateLimiter)

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
