package commands

import (
	"context"
	"database/sql"

	"golang.org/x/time/rate"

	"github.com/normgate/normgate/ai/openrouter"
	"github.com/normgate/normgate/classify"
	"github.com/normgate/normgate/config"
	"github.com/normgate/normgate/corpus"
	"github.com/normgate/normgate/db"
	"github.com/normgate/normgate/engine"
	"github.com/normgate/normgate/entitle"
	"github.com/normgate/normgate/errors"
	"github.com/normgate/normgate/evaluate"
	"github.com/normgate/normgate/logger"
	"github.com/normgate/normgate/store"
	"github.com/normgate/normgate/usage"
)

// openDatabase opens and migrates the configured database.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	conn, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn, logger.Logger); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "migrate database")
	}
	return conn, nil
}

// buildResolver wires the entitlement resolver with the configured
// cache backend.
func buildResolver(ctx context.Context, cfg *config.Config, conn *sql.DB) *entitle.Resolver {
	cache := store.NewCache(ctx, store.NewRedisClient(cfg.Redis))
	return entitle.NewResolver(
		entitle.NewSQLStore(conn),
		cache,
		logger.Logger,
		entitle.WithCacheTTL(cfg.EntitlementCacheTTL()),
	)
}

// buildEngine assembles the full evaluation pipeline from
// configuration.
func buildEngine(ctx context.Context, cfg *config.Config, conn *sql.DB) (*engine.Engine, *usage.Recorder, error) {
	log := logger.Logger

	client := openrouter.NewClient(openrouter.Config{
		APIKey:        cfg.OpenRouter.APIKey,
		Model:         cfg.OpenRouter.Model,
		Temperature:   &cfg.OpenRouter.Temperature,
		MaxTokens:     &cfg.OpenRouter.MaxTokens,
		Logger:        log,
		DB:            conn,
		OperationType: "classify",
		EntityType:    "rule",
	})
	if !client.IsConfigured() {
		return nil, nil, errors.New("OpenRouter API key not configured (set NORMGATE_OPENROUTER_API_KEY)")
	}

	classifier := classify.NewClassifier(client, log)

	var limiter *rate.Limiter
	if cfg.Evaluator.MaxCallsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.Evaluator.MaxCallsPerMinute)/60), cfg.Concurrency())
	}
	orchestrator := evaluate.New(classifier, evaluate.Options{
		Concurrency: cfg.Concurrency(),
		CallTimeout: cfg.CallTimeout(),
		Limiter:     limiter,
		Logger:      log,
	})

	entStore := entitle.NewSQLStore(conn)
	recorder := usage.NewRecorder(conn, entStore, log)
	rules := corpus.NewStore(cfg.Corpus.Dir, log)

	eng, err := engine.New(buildResolver(ctx, cfg, conn), rules, orchestrator, recorder, log)
	if err != nil {
		return nil, nil, err
	}
	return eng, recorder, nil
}
