package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fitcoach/fitcoach/db"
	"github.com/fitcoach/fitcoach/internal/backend"
	"github.com/fitcoach/fitcoach/internal/config"
	"github.com/fitcoach/fitcoach/internal/conversation"
	"github.com/fitcoach/fitcoach/internal/knowledge"
	"github.com/fitcoach/fitcoach/internal/log"
	"github.com/fitcoach/fitcoach/internal/rag"
)

// Setup creates and initializes the application. Call Close on the returned
// App to release its resources.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(log.Config{})
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool
	a.dbCleanup = dbCleanup

	b, err := backend.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Backend = b

	a.Knowledge = knowledge.NewStore(knowledge.NewQueries(pool), b.Embedder, logger)
	a.Pipeline = knowledge.NewPipeline(a.Knowledge, knowledge.PipelineConfig{
		ChunkSize:      cfg.RAG.ChunkSize,
		ChunkOverlap:   cfg.RAG.ChunkOverlap,
		Collection:     cfg.RAG.Collection,
		EmbeddingModel: cfg.EmbedderModel,
	}, logger)

	a.Conversations = conversation.NewStore(conversation.NewQueries(pool), pool, logger)

	retriever := rag.NewRetriever(a.Knowledge, cfg.RAG.TopK, cfg.RAG.MinScore, logger)
	a.RAG = rag.NewService(
		retriever,
		rag.NewComposer(cfg.RAG.HistoryBudget),
		b.Generator(),
		a.Conversations,
		cfg.RAG.Enabled,
		logger,
	)

	return a, nil
}

// provideDBPool runs migrations and opens a pgx pool with health-checked
// connections.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}
