package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/dataviz-search/internal/config"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
	"github.com/kirillkom/dataviz-search/internal/core/registry"
	"github.com/kirillkom/dataviz-search/internal/core/usecase"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/imaging"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/llm/openai"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/queue/nats"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/resilience"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/session"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/vector/weaviate"
	"github.com/kirillkom/dataviz-search/internal/observability/metrics"
)

const (
	APIServiceName    = "dviz-api"
	WorkerServiceName = "dviz-worker"

	sinkNATS     = "nats"
	sinkPostgres = "postgres"
	sinkNone     = "none"
)

// App holds the wired API dependencies.
type App struct {
	Config   config.Config
	Registry *registry.Registry
	Metrics  *metrics.HTTPServerMetrics

	Turns     *usecase.TurnUseCase
	Sessions  *usecase.SessionUseCase
	Search    *usecase.SearchUseCase
	Describer *usecase.ImageDescriber
	Images    *localfs.ImageStore

	HealthChecks map[string]func(context.Context) error

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{
		Config:       cfg,
		Metrics:      metrics.NewHTTPServerMetrics(APIServiceName),
		HealthChecks: map[string]func(context.Context) error{},
	}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	reg, err := registry.Load()
	if err != nil {
		return nil, fmt.Errorf("load field registry: %w", err)
	}
	app.Registry = reg

	executor := resilience.NewExecutor(
		cfg.ResilienceConfig(),
		resilience.WithStateObserver(func(operation, from, to string) {
			app.Metrics.RecordBreakerState(APIServiceName, operation, to)
		}),
	)

	chatLLM := openai.New(openai.Options{
		Name:               "chat",
		APIKey:             cfg.ChatAPIKey,
		BaseURL:            cfg.ChatBaseURL,
		Model:              cfg.ChatModel,
		Timeout:            cfg.LLMTimeout,
		ResilienceExecutor: executor,
	})
	rewriteLLM := openai.New(openai.Options{
		Name:               "rewrite",
		APIKey:             cfg.RewriteAPIKey,
		BaseURL:            cfg.RewriteBaseURL,
		Model:              cfg.RewriteModel,
		Timeout:            cfg.LLMTimeout,
		ResilienceExecutor: executor,
	})
	visionLLM := openai.New(openai.Options{
		Name:               "vision",
		APIKey:             cfg.VisionAPIKey,
		BaseURL:            cfg.VisionBaseURL,
		Model:              cfg.VisionModel,
		Timeout:            cfg.LLMTimeout,
		ResilienceExecutor: executor,
	})

	backend, err := weaviate.New(weaviate.Options{
		BaseURL:            cfg.WeaviateURL,
		APIKey:             cfg.WeaviateAPIKey,
		Collection:         cfg.WeaviateCollection,
		Headers:            cfg.WeaviateHeaders(),
		Timeout:            cfg.WeaviateTimeout,
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, err
	}
	if err := CheckSchema(ctx, backend, reg.VectorNames(), cfg.WeaviateStrictSchema); err != nil {
		return nil, err
	}
	app.HealthChecks["weaviate"] = func(ctx context.Context) error {
		_, err := backend.NamedVectors(ctx)
		return err
	}

	detector, err := newDetector(cfg.DetectorStrategy, chatLLM, reg)
	if err != nil {
		return nil, err
	}

	sessions, err := app.newSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	transcripts, err := app.newTranscriptSink(ctx, cfg, executor)
	if err != nil {
		return nil, err
	}

	images, err := localfs.New(cfg.ImageStoragePath)
	if err != nil {
		return nil, fmt.Errorf("init image storage: %w", err)
	}
	app.Images = images

	describer := usecase.NewImageDescriber(
		imaging.NewFetcher(imaging.FetcherOptions{
			Timeout:            cfg.ImageFetchTimeout,
			MaxBytes:           cfg.ImageMaxBytes,
			UserAgent:          cfg.ImageFetchUserAgent,
			ResilienceExecutor: executor,
		}),
		imaging.NewNormalizer(cfg.ImageMaxDimension, cfg.ImageMaxPixels),
		visionLLM,
	)
	app.Describer = describer

	rewriter := usecase.NewQueryRewriter(rewriteLLM)
	searchExecutor := usecase.NewSearchExecutor(backend, reg, cfg.SearchLimit)
	reranker := usecase.NewLLMReranker(rewriteLLM)
	retriever := usecase.NewRetriever(backend)
	limits := turnLimits(cfg)

	app.Turns = usecase.NewTurnUseCase(usecase.TurnDependencies{
		Sessions:    sessions,
		Rewriter:    rewriter,
		Detector:    detector,
		Executor:    searchExecutor,
		Reranker:    reranker,
		Retriever:   retriever,
		Describer:   describer,
		Images:      images,
		Transcripts: transcripts,
	}, limits, cfg.ImageURLPrefix)
	app.Sessions = usecase.NewSessionUseCase(sessions)
	app.Search = usecase.NewSearchUseCase(rewriter, detector, searchExecutor, reranker, retriever, limits)

	slog.Info("bootstrap_ready",
		"detector", cfg.DetectorStrategy,
		"session_store", cfg.SessionStore,
		"transcript_sink", cfg.TranscriptSink,
		"facets", reg.Len(),
	)
	ok = true
	return app, nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

func turnLimits(cfg config.Config) usecase.TurnLimits {
	return usecase.TurnLimits{
		TextTopK:              cfg.TextTopK,
		ImageCandidates:       cfg.ImageCandidates,
		DisplayTopK:           cfg.DisplayTopK,
		ToolsFallbackTopK:     cfg.ToolsFallbackTopK,
		HybridCandidates:      cfg.HybridCandidates,
		LongContextCandidates: cfg.LongContextCandidates,
		HybridAlpha:           cfg.HybridAlpha,
		RelevanceThreshold:    cfg.RerankRelevanceThreshold,
	}
}

func newDetector(strategy string, llm ports.ChatCompleter, reg ports.FieldRegistry) (ports.ToolDetector, error) {
	switch strategy {
	case "", "llm":
		return usecase.NewLLMToolDetector(llm, reg), nil
	case "keyword":
		return usecase.NewKeywordToolDetector(reg), nil
	default:
		return nil, fmt.Errorf("unknown detector strategy %q", strategy)
	}
}

func (a *App) newSessionStore(ctx context.Context, cfg config.Config) (ports.SessionStore, error) {
	switch cfg.SessionStore {
	case "", "memory":
		return session.NewMemoryStore(cfg.SessionTTL), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := session.NewRedisStore(client, cfg.SessionTTL, "")
		a.onClose(func() { _ = store.Close() })
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.HealthChecks["redis"] = store.Ping
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}

func (a *App) newTranscriptSink(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.TranscriptPublisher, error) {
	switch cfg.TranscriptSink {
	case "", sinkNone:
		return nil, nil
	case sinkNATS:
		queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ClientName:         APIServiceName,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		a.onClose(queue.Close)
		a.HealthChecks["nats"] = queue.Ping
		return queue, nil
	case sinkPostgres:
		db, err := openTranscriptDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = db.Close() })
		a.HealthChecks["postgres"] = db.PingContext

		sink := postgres.NewAsyncSink(
			usecase.NewTranscriptUseCase(postgres.NewTranscriptRepository(db)),
			cfg.TranscriptBuffer,
			5*time.Second,
		)
		a.onClose(func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := sink.Close(closeCtx); err != nil {
				slog.Warn("transcript_sink_close_failed", "error", err)
			}
		})
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown transcript sink %q", cfg.TranscriptSink)
	}
}

func openTranscriptDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}
