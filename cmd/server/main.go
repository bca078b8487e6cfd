// Package main implements the entry point for the pinbox API server,
// which stores users' content cards and enriches them asynchronously with
// classification, categorization, AI metadata and renderables.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/robfig/cron/v3"

	"github.com/pinbox/pinbox-api/internal/category"
	"github.com/pinbox/pinbox-api/internal/config"
	"github.com/pinbox/pinbox-api/internal/events"
	"github.com/pinbox/pinbox-api/internal/linkmeta"
	"github.com/pinbox/pinbox-api/internal/pipeline"
	"github.com/pinbox/pinbox-api/internal/platform/blobfs"
	"github.com/pinbox/pinbox-api/internal/platform/gemini"
	"github.com/pinbox/pinbox-api/internal/platform/logger"
	"github.com/pinbox/pinbox-api/internal/platform/postgres"
	"github.com/pinbox/pinbox-api/internal/ratelimit"
	"github.com/pinbox/pinbox-api/internal/service"
	"github.com/pinbox/pinbox-api/internal/service/auth"
	"github.com/pinbox/pinbox-api/internal/sweeper"
	"github.com/pinbox/pinbox-api/internal/task"
)

func main() {
	app, err := initializeApp(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.run(context.Background()); err != nil {
		app.logger.Error("Server exited with error", "error", err)
		app.cleanup()
		log.Fatalf("Server failed: %v", err)
	}
}

// application holds the wired dependencies for the running server.
type application struct {
	config      *config.Config
	logger      *slog.Logger
	db          *sql.DB
	jwtService  auth.JWTService
	cardService service.CardService
	taskRunner  *task.TaskRunner
	cron        *cron.Cron
}

// initializeApp loads configuration and wires every component: database and
// migrations, stores, the Gemini generator, the enrichment pipeline, the
// task runner with its event plumbing, and the retention cron jobs.
func initializeApp(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server)
	appLogger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	if err := postgres.RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	appLogger.Info("database migrations applied")

	// Stores.
	cardStore := postgres.NewPostgresCardStore(db, appLogger)
	workflowStore := postgres.NewPostgresWorkflowStore(db, appLogger)

	blobs, err := blobfs.New(cfg.Storage.Dir, cfg.Storage.BaseURL, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up blob storage: %w", err)
	}

	generator, err := gemini.NewMetadataGenerator(ctx, appLogger, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata generator: %w", err)
	}

	// Pipeline stages share one outbound HTTP client.
	httpClient := &http.Client{Timeout: cfg.Pipeline.FetchTimeout}
	extractor := linkmeta.NewExtractor(httpClient, cfg.Pipeline.FetchUserAgent, appLogger)
	registry := category.NewRegistry(httpClient, cfg.Pipeline.FetchUserAgent, appLogger)

	orchestrator := pipeline.NewOrchestrator(
		cardStore,
		workflowStore,
		pipeline.NewClassifier(cardStore, extractor, appLogger),
		pipeline.NewCategorizer(cardStore, registry, appLogger),
		pipeline.NewMetadataStage(cardStore, blobs, generator, appLogger),
		pipeline.NewRenderableStage(cardStore, blobs, appLogger),
		nil,
		appLogger,
	)

	// Task runner with crash recovery. The resolver re-binds execution
	// logic onto tasks loaded back from the database.
	taskStore := postgres.NewPostgresTaskStore(db, func(taskType string, payload []byte) (func(context.Context) error, error) {
		if taskType != task.TaskTypeCardEnrichment {
			return nil, fmt.Errorf("unknown task type %q", taskType)
		}
		var p events.EnrichmentPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal enrichment payload: %w", err)
		}
		return func(ctx context.Context) error {
			_, err := orchestrator.Start(ctx, p.CardID)
			return err
		}, nil
	})

	runnerConfig := task.DefaultTaskRunnerConfig()
	if cfg.Pipeline.WorkerCount > 0 {
		runnerConfig.WorkerCount = cfg.Pipeline.WorkerCount
	}
	if cfg.Pipeline.QueueSize > 0 {
		runnerConfig.QueueSize = cfg.Pipeline.QueueSize
	}
	taskRunner := task.NewTaskRunner(taskStore, runnerConfig, appLogger)

	// Event plumbing: services emit enrichment request events; the handler
	// turns them into tasks and submits them to the runner.
	emitter := events.NewInMemoryEventEmitter(appLogger)
	taskFactory := task.NewCardEnrichmentTaskFactory(orchestrator, appLogger)
	emitter.RegisterHandler(task.NewTaskFactoryEventHandler(taskFactory, taskRunner, appLogger))

	limiter := ratelimit.New(map[ratelimit.Kind]ratelimit.Limit{
		ratelimit.KindCardCreate: {
			PerMinute: cfg.Limits.CardCreatePerMinute,
			Burst:     cfg.Limits.CardCreateBurst,
		},
		ratelimit.KindExternalAPI: {
			PerMinute: cfg.Limits.ExternalPerMinute,
			Burst:     cfg.Limits.ExternalBurst,
		},
	})

	cardService, err := service.NewCardService(
		service.NewCardRepositoryAdapter(cardStore, db),
		limiter,
		emitter,
		appLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create card service: %w", err)
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	// Retention jobs: nightly sweep of expired soft-deleted cards, and a
	// 6-hourly backfill scan that re-enqueues cards missing AI metadata.
	sweep := sweeper.New(cardStore, blobs, cfg.Retention.SweepAfterDays, appLogger)
	backfill := sweeper.NewBackfill(
		cardStore,
		emitter,
		cfg.Retention.BackfillBatch,
		cfg.Retention.BackfillGrace,
		appLogger,
	)

	cronRunner := cron.New()
	if _, err := cronRunner.AddFunc("0 4 * * *", func() {
		if _, err := sweep.Run(context.Background()); err != nil {
			appLogger.Error("retention sweep failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule retention sweep: %w", err)
	}
	if _, err := cronRunner.AddFunc("0 */6 * * *", func() {
		if _, err := backfill.Run(context.Background()); err != nil {
			appLogger.Error("backfill scan failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule backfill scan: %w", err)
	}

	return &application{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		jwtService:  jwtService,
		cardService: cardService,
		taskRunner:  taskRunner,
		cron:        cronRunner,
	}, nil
}

// run starts background processing and serves HTTP until shutdown.
func (app *application) run(ctx context.Context) error {
	if err := app.taskRunner.Start(); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}
	app.cron.Start()

	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup stops background workers and closes shared resources.
func (app *application) cleanup() {
	if app.cron != nil {
		app.cron.Stop()
	}
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database", "error", err)
		}
	}
}
