package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkaplan/postloom/internal/config"
	"github.com/mkaplan/postloom/internal/logger"
	"github.com/mkaplan/postloom/internal/repository"
	"github.com/mkaplan/postloom/internal/service"
	"github.com/mkaplan/postloom/internal/storage"
)

// The worker is a standalone process so the queue keeps draining when the
// API is down, and so it can be scaled independently of the HTTP surface.
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog := logger.NewDefault()
	logger.SetDefaultLogger(appLog)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.Fatalf("Failed to initialize database: %v", err)
	}

	jobRepo := repository.NewJobRepository(db)
	runRepo := repository.NewRunRepository(db)
	calendarRepo := repository.NewCalendarRepository(db)
	assetRepo := repository.NewAssetRepository(db)
	planningRepo := repository.NewPlanningRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var qdrantRepo *repository.QdrantRepository
	var embeddingService *service.EmbeddingService
	if cfg.Qdrant.Enabled && cfg.Embedding.Enabled {
		qdrantRepo, err = repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: cfg.Embedding.Dimensions,
		})
		if err != nil {
			appLog.Fatalf("Failed to initialize Qdrant repository: %v", err)
		}
		defer qdrantRepo.Close()

		if err := qdrantRepo.EnsureCollection(context.Background()); err != nil {
			appLog.Fatalf("Failed to ensure Qdrant collection: %v", err)
		}

		embeddingService = service.NewEmbeddingService(&service.EmbeddingConfig{
			Provider:   cfg.Embedding.Provider,
			Model:      cfg.Embedding.Model,
			APIKey:     cfg.Embedding.APIKey,
			Dimensions: cfg.Embedding.Dimensions,
		})
	}

	var transcriptStore storage.ObjectStorage
	if cfg.Storage.Enabled {
		transcriptStore, err = storage.NewStorage(&storage.S3Config{
			Type:      storage.StorageType(cfg.Storage.Type),
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			appLog.Fatalf("Failed to initialize storage: %v", err)
		}
		if err := transcriptStore.EnsureBucket(context.Background()); err != nil {
			appLog.Fatalf("Failed to ensure storage bucket: %v", err)
		}
	}

	llmService := service.NewLLMService(&service.LLMConfig{
		Model:          cfg.LLM.Model,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		JudgeEnabled:   cfg.Judge.Enabled,
		JudgeModel:     cfg.Judge.Model,
		RequestTimeout: cfg.Generation.RequestTimeout,
	})

	exampleService := service.NewExampleService(assetRepo, qdrantRepo, embeddingService)

	pipeline := service.NewGenerationService(
		planningRepo,
		calendarRepo,
		assetRepo,
		runRepo,
		auditRepo,
		llmService,
		exampleService,
		transcriptStore,
		service.GenerationSettings{
			CandidatesPerSlot: cfg.Generation.CandidatesPerSlot,
			MinQualityScore:   cfg.Generation.MinQualityScore,
			PersonaSpacing:    time.Duration(cfg.Generation.PersonaSpacingHours) * time.Hour,
			FewShotLimit:      cfg.Generation.FewShotLimit,
		},
	)

	worker := service.NewWorker(jobRepo, pipeline, service.WorkerConfig{
		PollInterval:   cfg.Worker.PollInterval,
		MaxConcurrency: cfg.Worker.MaxConcurrency,
		LockTimeout:    cfg.Worker.LockTimeout,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		Backoff: service.BackoffPolicy{
			Base: cfg.Worker.BackoffBase,
			Max:  cfg.Worker.BackoffMax,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLog.WithFields(logger.Fields{
		"poll_interval":   cfg.Worker.PollInterval.String(),
		"max_concurrency": cfg.Worker.MaxConcurrency,
	}).Info("Starting worker")

	worker.Run(ctx)

	appLog.Info("Worker exited")
}
