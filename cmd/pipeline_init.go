package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aegis-advisory/guidance-cli/internal/pipeline"
	"github.com/aegis-advisory/guidance-cli/internal/store"
	"github.com/aegis-advisory/guidance-cli/internal/taxonomy"
	"github.com/aegis-advisory/guidance-cli/pkg/inference"
)

// pipelineEnv bundles the shared collaborators a command needs.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Taxonomy taxonomy.Repository

	taxonomyPool *pgxpool.Pool
}

// initPipeline opens the store, builds the taxonomy repository, and wires
// the pipeline. The inference client is attached only when an API key is
// configured; without one the pipeline runs on pattern rules alone.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	env := &pipelineEnv{Store: st}

	repo, err := env.taxonomyRepo(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Taxonomy = repo

	var inf inference.Client
	if cfg.Inference.Key != "" {
		inf = inference.NewAnthropic(cfg.Inference)
	} else {
		zap.L().Info("no inference key configured, running pattern rules only")
	}

	p, err := pipeline.New(cfg, st, repo, inf)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Pipeline = p

	return env, nil
}

// taxonomyRepo picks the vocabulary source: an XLSX workbook when
// configured, the postgres taxonomy tables when the store is postgres,
// and the built-in seed vocabulary otherwise.
func (e *pipelineEnv) taxonomyRepo(ctx context.Context) (taxonomy.Repository, error) {
	if cfg.Taxonomy.File != "" {
		terms, err := taxonomy.ImportXLSX(cfg.Taxonomy.File)
		if err != nil {
			return nil, err
		}
		return taxonomy.NewMemoryRepository(terms), nil
	}

	if cfg.Store.Driver == "postgres" {
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err == nil {
			e.taxonomyPool = pool
			return taxonomy.NewPostgresRepository(pool), nil
		}
		zap.L().Warn("taxonomy: postgres unavailable, falling back to seed vocabulary", zap.Error(err))
	}

	return taxonomy.NewMemoryRepository(taxonomy.DefaultTerms()), nil
}

func (e *pipelineEnv) Close() {
	if e.taxonomyPool != nil {
		e.taxonomyPool.Close()
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("store close failed", zap.Error(err))
		}
	}
}
