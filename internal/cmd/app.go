package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/roboforge/roboforge/internal/ailink"
	"github.com/roboforge/roboforge/internal/config"
	"github.com/roboforge/roboforge/internal/core/engine"
	"github.com/roboforge/roboforge/internal/core/store"
	"github.com/roboforge/roboforge/internal/parts"
)

// app bundles the wired collaborators a command needs.
type app struct {
	cfg   *config.Config
	store *store.Store
	svc   *ailink.Service
	forge *engine.Orchestrator
	parts *parts.Client
}

// appOptions selects which collaborators loadApp builds.
type appOptions struct {
	store     bool
	vendor    bool
	overrides map[string]any
}

// loadApp resolves config and wires the requested collaborators. Callers
// must Close the result.
func loadApp(ctx context.Context, logger *logging.Logger, opts appOptions) (*app, error) {
	var overrides []map[string]any
	if len(opts.overrides) > 0 {
		overrides = append(overrides, opts.overrides)
	}
	cfg, err := config.Load(ctx, overrides...)
	if err != nil {
		return nil, err
	}
	if traceFile == "" {
		enableTracing(cfg.AILink.Debug.TraceFile)
	}

	a := &app{cfg: cfg}
	if opts.store {
		st, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.store = st
	}

	if opts.vendor {
		svc, err := ailink.NewService(cfg.AILink, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("vendor client: %w", err)
		}
		a.svc = svc
		a.forge = &engine.Orchestrator{
			Generator: svc,
			Prompts:   svc.Prompts,
			CacheTTL:  cfg.Cache.GenerationTTL,
			Model:     cfg.AILink.DefaultModel,
			Workers:   cfg.Workers,
			Logger:    logger,
		}
	}

	a.parts = &parts.Client{
		TokenURL:     cfg.Parts.TokenURL,
		GraphQLURL:   cfg.Parts.GraphQLURL,
		ClientID:     cfg.Parts.ClientID,
		ClientSecret: cfg.Parts.ClientSecret,
		Limit:        cfg.Parts.Limit,
		HTTPClient:   &http.Client{Timeout: cfg.Parts.Timeout},
		CacheTTL:     cfg.Cache.PartsTTL,
		Logger:       logger,
	}

	// Assign through the typed field only when set; a nil *store.Store in an
	// interface would not compare equal to nil.
	if a.store != nil {
		a.parts.Cache = a.store
		if a.forge != nil {
			a.forge.Cache = a.store
		}
	}
	return a, nil
}

// Close releases the store.
func (a *app) Close() {
	if a == nil || a.store == nil {
		return
	}
	_ = a.store.Close()
	a.store = nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	if _, err := st.EnsureDefaultBuild(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("seed default build: %w", err)
	}
	return st, nil
}

// requireVendorKey fails early with a hint when no API key is configured.
func requireVendorKey(cfg *config.Config) error {
	if cfg == nil || cfg.AILink.APIKey == "" {
		return fmt.Errorf("no OpenAI API key configured (set OPENAI_API_KEY or ROBOFORGE_AILINK_API_KEY)")
	}
	return nil
}

func logStoreClose(logger *logging.Logger, st *store.Store) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil && logger != nil {
		logger.Warn("Failed to close store", zap.Error(err))
	}
}
