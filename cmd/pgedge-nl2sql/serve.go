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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pgedge-nl2sql/internal/api"
	"pgedge-nl2sql/internal/config"
	"pgedge-nl2sql/internal/logging"
	"pgedge-nl2sql/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON HTTP API",
	Long: `serve starts the HTTP API. Each browser session gets its own staged SQL and
results; sessions idle for longer than session.idle_timeout are discarded.

Send SIGHUP to reload the schema after a migration. Changes to the config
file's safety.mode, query.preview_limit and llm settings are applied without
a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	logging.SetDefaultLevel(logging.LevelInfo)

	cfg, path, flags, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{withLLM: true, withMetrics: true})
	if err != nil {
		return err
	}
	defer a.close()

	if config.ConfigFileExists(path) {
		rc := config.NewReloadableConfig(cfg, path, flags)
		rc.OnReload(a.applyReload)
		watcher, err := config.NewFileWatcher(path, rc.Reload)
		if err != nil {
			logging.Warn("config_watch_unavailable", "path", path, "error", err)
		} else {
			watcher.Start()
			defer watcher.Stop()
			logging.Info("config_watch_started", "path", path)
		}
	}

	manager := session.NewManager(a.deps(), cfg.Session.IdleTimeoutDuration())

	apiCfg := api.Config{
		HTTP:     cfg.HTTP,
		Sessions: manager,
		Catalog:  a.catalog,
		Database: a.db,
		Metrics:  a.metrics,
	}
	if a.history != nil {
		apiCfg.History = a.history
	}
	server, err := api.NewServer(apiCfg)
	if err != nil {
		return err
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return server.Serve(egctx)
	})
	eg.Go(func() error {
		return manager.Run(egctx)
	})
	eg.Go(func() error {
		refreshOnHangup(egctx, a)
		return nil
	})

	logging.Info("server_ready",
		"address", cfg.HTTP.Address,
		"database", a.db.ConnString(),
		"schema", a.catalog.Schema(),
		"tables", len(a.catalog.ListTables()),
	)
	return eg.Wait()
}

// refreshOnHangup reloads the schema on every SIGHUP until ctx ends
func refreshOnHangup(ctx context.Context, a *app) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := a.catalog.Refresh(ctx); err != nil {
				logging.Error("schema_refresh_failed", "error", err)
				continue
			}
			logging.Info("schema_refreshed", "tables", len(a.catalog.ListTables()))
		}
	}
}
