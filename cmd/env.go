package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/regiodata/event-dedup/internal/cost"
	"github.com/regiodata/event-dedup/internal/normalize"
	"github.com/regiodata/event-dedup/internal/pipeline"
	"github.com/regiodata/event-dedup/internal/resolver"
	"github.com/regiodata/event-dedup/internal/store"
	"github.com/regiodata/event-dedup/pkg/anthropic"
)

// env bundles the assembled subsystems for a command invocation.
type env struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases the store.
func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

// newStore opens the configured backend.
func newStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv opens the store, runs migrations, loads normalization rules, and
// assembles the pipeline (with the AI resolver only when enabled and keyed).
func initEnv(ctx context.Context) (*env, error) {
	st, err := newStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	normalizer, err := loadNormalizer()
	if err != nil {
		st.Close()
		return nil, err
	}

	var res pipeline.Resolver
	if cfg.Matching.AI.Enabled && cfg.Matching.AI.APIKey != "" {
		client := anthropic.NewClient(cfg.Matching.AI.APIKey)
		calc := cost.NewCalculator(cost.DefaultRates())
		res = resolver.New(client, st, calc, cfg.Matching.AI)
	} else if cfg.Matching.AI.Enabled {
		zap.L().Warn("ai resolution enabled but no api key configured, running deterministic only")
	}

	return &env{
		Store:    st,
		Pipeline: pipeline.New(st, normalizer, res, &cfg.Matching),
	}, nil
}

func loadNormalizer() (*normalize.Normalizer, error) {
	synonyms, err := normalize.LoadSynonyms(cfg.Rules.SynonymsPath)
	if err != nil {
		return nil, err
	}
	prefixes, err := normalize.LoadPrefixes(cfg.Rules.PrefixesPath)
	if err != nil {
		return nil, err
	}
	aliases, err := normalize.LoadCityAliases(cfg.Rules.CityAliasesPath)
	if err != nil {
		return nil, err
	}
	return &normalize.Normalizer{
		Prefixes:    prefixes,
		Synonyms:    synonyms,
		CityAliases: aliases,
	}, nil
}
