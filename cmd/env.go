package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prep-service/internal/cache"
	"github.com/sells-group/prep-service/internal/monitoring"
	"github.com/sells-group/prep-service/internal/pipeline"
	"github.com/sells-group/prep-service/internal/research"
	"github.com/sells-group/prep-service/internal/resilience"
	"github.com/sells-group/prep-service/internal/store"
	"github.com/sells-group/prep-service/internal/synthesis"
	anthropicpkg "github.com/sells-group/prep-service/pkg/anthropic"
	"github.com/sells-group/prep-service/pkg/apify"
	"github.com/sells-group/prep-service/pkg/firecrawl"
	"github.com/sells-group/prep-service/pkg/serpapi"
)

// prepEnv holds the initialized store, cache, and pipeline shared by the
// prep/research/serve commands.
type prepEnv struct {
	Store       store.Store
	Cache       *cache.CompanyCache
	Researcher  *research.Orchestrator
	Synthesizer *synthesis.Synthesizer
	Pipeline    *pipeline.PrepPipeline
	Metrics     *monitoring.Collector
}

// Close releases resources held by the environment.
func (pe *prepEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "prep.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func newCache(st store.Store) *cache.CompanyCache {
	return cache.New(st, time.Duration(cfg.Cache.TTLHours)*time.Hour)
}

// initEnv sets up the store, all provider clients, and the pipeline.
// Callers should defer env.Close().
func initEnv(ctx context.Context) (*prepEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (PREP_ANTHROPIC_KEY)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	llm := anthropicpkg.NewClient(cfg.Anthropic.Key)
	search := serpapi.NewClient(cfg.SerpAPI.Key, serpapi.WithBaseURL(cfg.SerpAPI.BaseURL))
	scraper := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	network := apify.NewClient(cfg.Apify.Token, apify.WithBaseURL(cfg.Apify.BaseURL))

	retry := resilience.DefaultRetryConfig()
	if cfg.Retry.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Retry.MaxAttempts
	}

	companyCache := newCache(st)

	researcher := research.NewOrchestrator(llm, search, scraper, network, research.Config{
		Model:         cfg.Research.Model,
		MaxTokens:     cfg.Research.MaxTokens,
		MaxToolCalls:  cfg.Research.MaxToolCalls,
		SearchResults: cfg.Research.SearchResults,
		Retry:         retry,
	})
	synthesizer := synthesis.NewSynthesizer(llm, synthesis.Config{
		Model:        cfg.Synthesis.Model,
		MaxTokens:    cfg.Synthesis.MaxTokens,
		MaxToolCalls: cfg.Synthesis.MaxToolCalls,
		Retry:        retry,
	})

	metrics := monitoring.NewCollector(companyCache)
	prepPipeline := pipeline.New(st, companyCache, researcher, synthesizer)
	prepPipeline.SetMetrics(metrics)

	return &prepEnv{
		Store:       st,
		Cache:       companyCache,
		Researcher:  researcher,
		Synthesizer: synthesizer,
		Pipeline:    prepPipeline,
		Metrics:     metrics,
	}, nil
}
