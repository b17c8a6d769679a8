package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	httpadapter "github.com/kirillkom/document-pipeline/internal/adapters/http"
	"github.com/kirillkom/document-pipeline/internal/config"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
	"github.com/kirillkom/document-pipeline/internal/core/usecase"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/catalog"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/classifier/keyword"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/events"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/extractor/docx"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/extractor/router"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/extractor/xlsx"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/repository/memory"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/resilience"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/storage/minio"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/workerpool"
	"github.com/kirillkom/document-pipeline/internal/observability/metrics"
)

const ServiceName = "document-pipeline-api"

type App struct {
	Config config.Config
	Logger *slog.Logger

	IngestUC  ports.DocumentIngestor
	ProcessUC *usecase.ProcessDocumentUseCase
	QueryUC   ports.DocumentReader
	ManageUC  *usecase.ManageDocumentUseCase
	Hub       *events.Hub

	handler http.Handler
	pool    *workerpool.Pool
	queue   *nats.Queue
	closers []func()
}

type stores struct {
	docs       ports.DocumentRepository
	audit      ports.AuditTrail
	categories ports.CategoryRepository
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	if err := app.wire(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) (err error) {
	cfg, logger := a.Config, a.Logger
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	registry := metrics.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(ServiceName, registry)
	httpMetrics := metrics.NewHTTPServerMetrics(ServiceName, registry)

	executor := resilience.NewExecutor(
		resilienceConfig(cfg),
		resilience.WithLogger(logger),
		resilience.WithHooks(pipelineMetrics.ResilienceHooks()),
	)

	st, err := a.openStores(ctx, cfg)
	if err != nil {
		return err
	}

	storage, err := openStorage(ctx, cfg, executor)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if cat, err = cat.WithDefault(cfg.DefaultCategory); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if err := catalog.Seed(ctx, st.categories, cat); err != nil {
		return err
	}
	if cfg.CatalogPrune {
		removed, err := catalog.Prune(ctx, st.categories, cat)
		if err != nil {
			return err
		}
		if len(removed) > 0 {
			logger.Info("catalog_categories_pruned", "categories", removed)
		}
	}

	classifier, err := newClassifier(cfg, cat, executor)
	if err != nil {
		return err
	}

	a.Hub = events.NewHub(events.HubOptions{
		Buffer:   cfg.SSEBuffer,
		Timeout:  cfg.SubscriptionTimeout(),
		Logger:   logger,
		Observer: httpMetrics,
	})
	a.closers = append(a.closers, a.Hub.Close)

	if cfg.DispatchBackend == config.BackendNATS || cfg.EventRelayEnabled {
		a.queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ClientName:         ServiceName,
			QueueGroup:         cfg.NATSQueueGroup,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			return fmt.Errorf("init message queue: %w", err)
		}
		a.closers = append(a.closers, a.queue.Close)
	}

	var publisher ports.EventPublisher = a.Hub
	if cfg.EventRelayEnabled {
		publisher = events.NewFanout(a.Hub, nats.NewEventRelay(a.queue, cfg.NATSEventsPrefix))
	}

	a.ProcessUC = usecase.NewProcessDocumentUseCase(
		st.docs,
		storage,
		newExtractor(),
		classifier,
		publisher,
		usecase.WithRunObserver(pipelineMetrics),
		usecase.WithProcessLogger(logger),
	)
	a.pool = workerpool.New(a.ProcessUC, cfg.PipelineWorkers, logger,
		workerpool.WithWaitObserver(pipelineMetrics.ObserveSlotWait),
	)

	var dispatcher ports.RunDispatcher
	switch cfg.DispatchBackend {
	case config.BackendNATS:
		dispatcher = a.queue
	case config.BackendLocal, "":
		dispatcher = a.pool
	default:
		return fmt.Errorf("unknown dispatch backend %q", cfg.DispatchBackend)
	}

	a.IngestUC = usecase.NewIngestDocumentUseCase(st.docs, storage, dispatcher, logger)
	a.ManageUC = usecase.NewManageDocumentUseCase(st.docs, st.categories, storage, dispatcher, a.ProcessUC, logger)
	a.QueryUC = usecase.NewQueryUseCase(st.docs, st.audit, st.categories, storage)

	a.handler = httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Ingest:         a.IngestUC,
		Reader:         a.QueryUC,
		Manager:        a.ManageUC,
		Stream:         a.Hub,
		Metrics:        httpMetrics,
		MetricsHandler: metrics.Handler(registry),
	}).Handler()

	return nil
}

func (a *App) Handler() http.Handler {
	return a.handler
}

// Start begins consuming queued run requests (NATS dispatch only) and re-dispatches
// documents left PROCESSING by a previous process. It returns without waiting.
func (a *App) Start(ctx context.Context) error {
	if a.Config.DispatchBackend == config.BackendNATS {
		go func() {
			if err := a.queue.Consume(ctx, a.pool); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error("run_consumer_stopped", "error", err)
			}
		}()
	}

	recovered, err := a.ManageUC.RecoverStale(ctx)
	if err != nil {
		return fmt.Errorf("recover stale runs: %w", err)
	}
	if recovered > 0 {
		a.Logger.Info("stale_runs_redispatched", "count", recovered)
	}
	return nil
}

// Shutdown waits for in-flight runs until ctx ends, then ends every live
// subscription and releases connections.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.pool != nil {
		if err = a.pool.Close(ctx); err != nil {
			a.Logger.Warn("pipeline_shutdown_incomplete", "error", err)
		}
	}
	a.close()
	return err
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openStores(ctx context.Context, cfg config.Config) (stores, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		store := memory.NewStore()
		return stores{docs: store, audit: store, categories: store}, nil
	case config.BackendPostgres, "":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return stores{}, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			return stores{}, fmt.Errorf("migrate postgres: %w", err)
		}
		return postgresStores(db), nil
	default:
		return stores{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func postgresStores(db *sql.DB) stores {
	return stores{
		docs:       postgres.NewDocumentRepository(db),
		audit:      postgres.NewAuditRepository(db),
		categories: postgres.NewCategoryRepository(db),
	}
}

func openStorage(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case config.BackendMinIO:
		storage, err := minio.New(ctx, minio.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		}, executor)
		if err != nil {
			return nil, fmt.Errorf("init minio storage: %w", err)
		}
		return storage, nil
	case config.BackendLocalFS, "":
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newClassifier(cfg config.Config, cat catalog.Catalog, executor *resilience.Executor) (ports.DocumentClassifier, error) {
	switch cfg.ClassifierBackend {
	case config.BackendOllama:
		return ollama.NewClassifier(ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, executor), cat), nil
	case config.BackendKeyword, "":
		return keyword.New(cat), nil
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", cfg.ClassifierBackend)
	}
}

func newExtractor() ports.TextExtractor {
	text := plaintext.NewExtractor()
	return router.New().
		Register(router.MimePlain, text, ".txt", ".md", ".csv", ".log", ".json").
		Register(router.MimePDF, pdf.NewExtractor(), ".pdf").
		Register(router.MimeDOCX, docx.NewExtractor(), ".docx").
		Register(router.MimeXLSX, xlsx.NewExtractor(), ".xlsx").
		Fallback(text)
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	out.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	out.RetryMultiplier = cfg.ResilienceRetryMultiplier
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	out.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	return out
}
