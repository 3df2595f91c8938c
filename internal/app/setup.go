package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/genai"

	"github.com/newshound/newshound/db"
	"github.com/newshound/newshound/internal/catalog"
	"github.com/newshound/newshound/internal/config"
	"github.com/newshound/newshound/internal/index"
	"github.com/newshound/newshound/internal/ingest"
	"github.com/newshound/newshound/internal/llm"
	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/rag"
	"github.com/newshound/newshound/internal/telegram"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup, call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	emb := llm.NewEmbedder(embedder, cfg.VectorSize, logger,
		llm.WithEmbedOptions(embedOptions(cfg)))
	gen := llm.NewGenerator(g, cfg.FullModelName(), float64(cfg.Temperature), logger)

	a.Telegram = provideTelegram(cfg, logger)
	a.Catalog = catalog.New(pool, logger)
	a.Index = index.New(pool, emb, logger)

	a.Ingest = ingest.New(&telegramSource{client: a.Telegram}, a.Catalog, a.Index, ingest.Options{
		StateDir:   cfg.StateDir,
		BatchSize:  cfg.IngestBatchSize,
		PostsLimit: cfg.PostsLimit,
	}, logger)

	retriever := rag.NewRetriever(a.Index, logger)
	a.RAG = rag.NewService(retriever, gen, rag.Options{
		TopK:            cfg.RetrievalK,
		SummaryPoolSize: cfg.SummaryPoolSize,
		SummaryMaxChars: cfg.SummaryMaxChars,
	}, logger)

	a.Stats = NewStatsService(a.Index, a.Catalog)

	return a, nil
}

// provideOtelShutdown exports traces over OTLP HTTP to a local collector.
// Must run before provideGenkit so the TracerProvider is ready.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	// Set OTEL env vars for Genkit's TracerProvider to pick up.
	// SAFETY: os.Setenv is not concurrent-safe, but this function is called
	// exactly once during startup in Setup, before goroutines are spawned.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates a PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default) and ollama.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		// Ollama embedders are keyed by server address (registered in provideGenkit)
		return ollama.Embedder(g, cfg.OllamaHost)
	default: // gemini
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// embedOptions builds the provider-specific embed request options.
// Gemini models emit 3072-dim vectors unless truncated; the pgvector
// schema stores cfg.VectorSize, so the dimensionality is pinned here.
func embedOptions(cfg *config.Config) any {
	if cfg.Provider == config.ProviderOllama {
		return nil
	}
	dim := int32(cfg.VectorSize)
	return &genai.EmbedContentConfig{OutputDimensionality: &dim}
}

// provideTelegram builds the preview client with the configured
// endpoint and request pacing.
func provideTelegram(cfg *config.Config, logger log.Logger) *telegram.Client {
	opts := []telegram.Option{}
	if cfg.TelegramBaseURL != "" {
		opts = append(opts, telegram.WithBaseURL(cfg.TelegramBaseURL))
	}
	if cfg.TelegramRateLimit > 0 {
		interval := time.Duration(float64(time.Second) / cfg.TelegramRateLimit)
		opts = append(opts, telegram.WithRequestInterval(interval))
	}
	return telegram.New(logger, opts...)
}
