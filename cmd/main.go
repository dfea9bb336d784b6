package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"

	"resume-match-go/internal/api/handler"
	"resume-match-go/internal/api/router"
	"resume-match-go/internal/config"
	"resume-match-go/internal/embedding"
	"resume-match-go/internal/extractor"
	appLogger "resume-match-go/internal/logger"
	"resume-match-go/internal/pipeline"
	"resume-match-go/internal/similarity"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/suggest"
	"resume-match-go/internal/tracing"
	"resume-match-go/pkg/ratelimit"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("failed to load config: %v", err)
	}

	appLogger.Init(appLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	glog.SetLogger(hertzadapter.From(appLogger.Logger))
	appLogger.Info().Msg("config loaded")

	ctx, cancel := context.WithCancel(appLogger.WithContext(context.Background()))
	defer cancel()

	traceProvider, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		glog.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := traceProvider.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn().Err(err).Msg("trace provider shutdown failed")
		}
	}()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("failed to initialize storage: %v", err)
	}
	defer storageManager.Close()
	appLogger.Info().Msg("storage backends initialized")

	pdfSource, err := extractor.NewEinoPDFSource(ctx)
	if err != nil {
		glog.Fatalf("failed to create PDF extractor: %v", err)
	}
	extractorOptions := []extractor.Option{extractor.WithPDFSource(pdfSource)}
	if cfg.Tika.ServerURL != "" {
		var tikaOptions []extractor.TikaOption
		if cfg.Tika.Timeout > 0 {
			tikaOptions = append(tikaOptions, extractor.WithTikaTimeout(time.Duration(cfg.Tika.Timeout)*time.Second))
		}
		extractorOptions = append(extractorOptions,
			extractor.WithDOCXSource(extractor.NewTikaDOCXSource(cfg.Tika.ServerURL, tikaOptions...)))
		appLogger.Info().Str("server", cfg.Tika.ServerURL).Msg("Tika DOCX extraction enabled")
	} else {
		appLogger.Warn().Msg("no Tika server configured, DOCX uploads will be rejected")
	}
	documentExtractor := extractor.New(extractorOptions...)

	embedClient, err := embedding.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding)
	if err != nil {
		glog.Fatalf("failed to create embedding client: %v", err)
	}
	embedLimiter := ratelimit.NewTokenBucket(60, 10).
		WithRetryPolicy(time.Duration(cfg.Embedding.RetryWaitSeconds)*time.Second, cfg.Embedding.MaxRetries)
	embedderOptions := []embedding.DocumentEmbedderOption{embedding.WithLimiter(embedLimiter)}
	if storageManager.Redis != nil {
		embedderOptions = append(embedderOptions, embedding.WithCache(storage.NewEmbeddingCache(storageManager.Redis)))
	} else {
		embedderOptions = append(embedderOptions, embedding.WithCache(embedding.NewMemoryCache()))
		appLogger.Warn().Msg("Redis unavailable, embedding cache is in-process only")
	}
	documentEmbedder := embedding.NewDocumentEmbedder(embedClient, embedderOptions...)

	similarityEngine := similarity.NewEngine(cfg.Matching.Weights)

	chatModel, err := suggest.NewOpenAIChatModel(cfg.LLM)
	if err != nil {
		glog.Fatalf("failed to create chat model: %v", err)
	}
	llmLimiter := ratelimit.NewTokenBucket(30, 5)
	suggestionGenerator := suggest.NewGenerator(chatModel,
		suggest.WithGeneratorLimiter(llmLimiter),
		suggest.WithMaxSuggestions(cfg.Suggestion.MaxSuggestions),
	)

	orchestratorOptions := []pipeline.Option{
		pipeline.WithRateLimit(cfg.RateLimit),
		pipeline.WithSuggestionTimeout(time.Duration(cfg.Suggestion.TimeoutSecs) * time.Second),
	}
	if storageManager.RabbitMQ != nil {
		orchestratorOptions = append(orchestratorOptions, pipeline.WithTaskQueue(storageManager.RabbitMQ))
	}
	if storageManager.Redis != nil {
		orchestratorOptions = append(orchestratorOptions, pipeline.WithDedupStore(storageManager.Redis))
	}
	if storageManager.Qdrant != nil {
		orchestratorOptions = append(orchestratorOptions, pipeline.WithVectorIndex(storageManager.Qdrant))
	}
	orchestrator := pipeline.NewOrchestrator(
		storageManager.MySQL,
		storageManager.MinIO,
		documentExtractor,
		documentEmbedder,
		similarityEngine,
		suggestionGenerator,
		orchestratorOptions...,
	)
	appLogger.Info().Msg("pipeline orchestrator initialized")

	var consumerStop chan struct{}
	if storageManager.RabbitMQ != nil {
		consumerStop, err = storageManager.RabbitMQ.StartConsumer(
			cfg.RabbitMQ.SuggestionQueue,
			cfg.RabbitMQ.PrefetchCount,
			orchestrator.HandleSuggestionTask,
		)
		if err != nil {
			glog.Fatalf("failed to start suggestion consumer: %v", err)
		}
		appLogger.Info().Str("queue", cfg.RabbitMQ.SuggestionQueue).Msg("suggestion consumer started")
	} else {
		appLogger.Warn().Msg("RabbitMQ unavailable, suggestions run inline")
	}

	serverTracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		serverTracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	matchHandler := handler.NewMatchHandler(cfg, orchestrator)
	router.RegisterRoutes(h, matchHandler)

	go func() {
		appLogger.Info().Str("address", cfg.Server.Address).Msg("HTTP server starting")
		if err := h.Run(); err != nil {
			glog.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info().Msg("termination signal received, shutting down")

	if consumerStop != nil {
		close(consumerStop)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("server shutdown failed: %v", err)
	}
	appLogger.Info().Msg("shutdown complete")
}
