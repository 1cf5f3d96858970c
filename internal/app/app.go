// Package app assembles the application: model runtime, database, judges,
// and the query pipeline, all wired from one validated Config.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-ai/tessera/internal/analyze"
	"github.com/tessera-ai/tessera/internal/chunk"
	"github.com/tessera-ai/tessera/internal/config"
	"github.com/tessera-ai/tessera/internal/index"
	"github.com/tessera-ai/tessera/internal/ingest"
	"github.com/tessera-ai/tessera/internal/judge"
	"github.com/tessera-ai/tessera/internal/log"
	"github.com/tessera-ai/tessera/internal/observability"
	"github.com/tessera-ai/tessera/internal/pipeline"
	"github.com/tessera-ai/tessera/internal/plan"
	"github.com/tessera-ai/tessera/internal/provider"
)

// App holds the assembled application.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Pipeline *pipeline.Pipeline
	Ingester *ingest.Ingester
	Store    *index.Store

	pool         *pgxpool.Pool
	traceCleanup func(context.Context) error
}

// Setup builds the full application from configuration. The returned App
// must be closed to release the database pool and flush traces.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	tracer, traceCleanup, err := observability.Setup(ctx, observability.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	// Model runtime. The GoogleAI plugin reads GEMINI_API_KEY from the
	// environment.
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, fmt.Errorf("initialize genkit")
	}
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("create embedder %q", cfg.EmbedderModel)
	}

	base, err := provider.NewGenkit(provider.GenkitConfig{
		Genkit:       g,
		DefaultModel: "googleai/" + cfg.ModelName,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	generation := provider.NewResilient(base,
		provider.DefaultRetryConfig(), provider.DefaultCircuitBreakerConfig(), logger)

	// Database.
	if err := index.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := index.NewStore(index.NewQueries(pool), embedder, logger)

	// Judges share one bounded-timeout client on the cheaper judge model.
	judgeClient := judge.NewClient(base, "googleai/"+cfg.JudgeModel,
		time.Duration(cfg.JudgeTimeoutSeconds)*time.Second, logger)
	analyzer := analyze.New(judgeClient,
		analyze.WithDefaultParameters(cfg.TopK, cfg.Threshold))

	var retrievalJudge *judge.RetrievalJudge
	if cfg.UseRetrievalJudge {
		retrievalJudge = judge.NewRetrievalJudge(judgeClient)
	}

	var planner *plan.Planner
	var executor *plan.Executor
	if cfg.UsePlanner {
		registry := plan.NewRegistry()
		registry.Register(plan.CurrentTimeTool{})
		registry.Register(plan.WebFetchTool{})
		registry.Register(plan.KnowledgeSearchTool{Index: store, TopK: cfg.TopK})
		planner = plan.NewPlanner(judgeClient, registry)
		executor = plan.NewExecutor(registry, logger)
	}

	pipe, err := pipeline.New(pipeline.Config{
		Provider:         generation,
		Index:            store,
		Analyzer:         analyzer,
		RetrievalJudge:   retrievalJudge,
		Planner:          planner,
		Executor:         executor,
		ProcessLogger:    pipeline.NewSlogProcessLogger(logger),
		Logger:           logger,
		Tracer:           tracer,
		DropDanglingTurn: cfg.DropDanglingTurn,
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	var chunkingJudge *judge.ChunkingJudge
	if cfg.UseChunkingJudge {
		chunkingJudge = judge.NewChunkingJudge(judgeClient)
	}
	var semantic *chunk.SemanticChunker
	if cfg.UseSemanticChunker {
		semantic, err = chunk.NewSemantic(chunk.SemanticConfig{
			Provider:     base,
			Model:        "googleai/" + cfg.JudgeModel,
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build semantic chunker: %w", err)
		}
	}

	ingester, err := ingest.New(ingest.Config{
		Store:               store,
		Judge:               chunkingJudge,
		Semantic:            semantic,
		DefaultChunkSize:    cfg.ChunkSize,
		DefaultChunkOverlap: cfg.ChunkOverlap,
		Logger:              logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build ingester: %w", err)
	}

	logger.Info("application ready",
		"model", cfg.ModelName,
		"judge_model", cfg.JudgeModel,
		"retrieval_judge", cfg.UseRetrievalJudge,
		"planner", cfg.UsePlanner,
	)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Pipeline:     pipe,
		Ingester:     ingester,
		Store:        store,
		pool:         pool,
		traceCleanup: traceCleanup,
	}, nil
}

// Close releases the database pool and flushes pending trace spans.
func (a *App) Close(ctx context.Context) error {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.traceCleanup != nil {
		return a.traceCleanup(ctx)
	}
	return nil
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
