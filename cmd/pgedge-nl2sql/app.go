/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"fmt"

	"pgedge-nl2sql/internal/apperr"
	"pgedge-nl2sql/internal/catalog"
	"pgedge-nl2sql/internal/config"
	"pgedge-nl2sql/internal/database"
	"pgedge-nl2sql/internal/executor"
	"pgedge-nl2sql/internal/history"
	"pgedge-nl2sql/internal/llm"
	"pgedge-nl2sql/internal/logging"
	"pgedge-nl2sql/internal/metrics"
	"pgedge-nl2sql/internal/safety"
	"pgedge-nl2sql/internal/session"
)

// appOptions selects which parts of the pipeline a command needs
type appOptions struct {
	withLLM     bool
	withMetrics bool
}

// app holds the shared pipeline components of one process
type app struct {
	cfg       *config.Config
	db        *database.Client
	catalog   *catalog.Catalog
	generator *llm.Generator
	executor  *executor.Executor
	policy    *safety.Policy
	history   *history.Store
	metrics   *metrics.Metrics
}

// newApp connects to the database and loads the schema. Any failure here is
// a startup error: there is no useful mode without a schema or, for
// commands that generate SQL, a model credential.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg}

	mode, err := safety.ParseMode(cfg.Safety.Mode)
	if err != nil {
		return nil, apperr.Startup("invalid safety mode", err)
	}
	a.policy = safety.NewPolicy(mode)

	if opts.withLLM {
		if err := cfg.LLM.RequireCredential(); err != nil {
			return nil, apperr.Startup("language model credential missing", err)
		}
		client := llm.NewClientFromConfig(&cfg.LLM)
		a.generator = llm.NewGenerator(client)
		logging.Info("llm_configured", "provider", client.ProviderName(), "model", client.Model())
	}

	if opts.withMetrics {
		a.metrics = metrics.New()
	}

	if err := cfg.Database.RequireDatabase(); err != nil {
		return nil, apperr.Startup("database not configured", err)
	}
	a.db = database.NewClient(&cfg.Database)
	if err := a.db.Connect(ctx); err != nil {
		return nil, apperr.Startup("failed to connect to database", err)
	}

	sqlDB, err := a.db.DB()
	if err != nil {
		a.close()
		return nil, apperr.Startup("failed to open database handle", err)
	}

	var catalogOpts []catalog.Option
	if a.metrics != nil {
		catalogOpts = append(catalogOpts, catalog.WithObserver(a.metrics))
	}
	a.catalog = catalog.New(sqlDB, cfg.Database.Schema, catalogOpts...)
	if err := a.catalog.Load(ctx); err != nil {
		a.close()
		return nil, apperr.Startup("failed to load schema", err)
	}

	a.executor = executor.New(sqlDB, executor.Options{
		Schema:       cfg.Database.Schema,
		PreviewLimit: cfg.Query.PreviewLimit,
	})

	if cfg.History.Enabled {
		store, err := openHistory(cfg)
		if err != nil {
			// History is a convenience; run without it
			logging.Warn("history_unavailable", "error", err)
		} else {
			a.history = store
		}
	}

	return a, nil
}

// openHistory opens the configured history store
func openHistory(cfg *config.Config) (*history.Store, error) {
	path, err := cfg.History.ResolvePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve history path: %w", err)
	}
	return history.Open(path)
}

// deps returns the collaborators shared by every session
func (a *app) deps() session.Deps {
	deps := session.Deps{
		Executor: a.executor,
		Schema:   a.catalog,
		Gate:     a.policy,
		Metrics:  a.metrics,
	}
	// Assigning a nil *llm.Generator or *history.Store would give a
	// non-nil interface
	if a.generator != nil {
		deps.Generator = a.generator
	}
	if a.history != nil {
		deps.History = a.history
	}
	return deps
}

// applyReload applies the settings that can change without a restart
func (a *app) applyReload(cfg *config.Config) {
	if mode, err := safety.ParseMode(cfg.Safety.Mode); err == nil {
		if mode != a.policy.Mode() {
			logging.Info("safety_mode_changed", "from", string(a.policy.Mode()), "to", string(mode))
		}
		a.policy.SetMode(mode)
	}

	a.executor.SetPreviewLimit(cfg.Query.PreviewLimit)

	if a.generator != nil {
		if err := cfg.LLM.RequireCredential(); err != nil {
			logging.Warn("llm_reload_skipped", "error", err)
		} else {
			client := llm.NewClientFromConfig(&cfg.LLM)
			a.generator.SetClient(client)
			logging.Info("llm_reloaded", "provider", client.ProviderName(), "model", client.Model())
		}
	}
}

// close releases the database pool and history store
func (a *app) close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			logging.Warn("history_close_failed", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
