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
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pgedge-nl2sql/internal/logging"
	"pgedge-nl2sql/internal/session"
	"pgedge-nl2sql/internal/shell"
	"pgedge-nl2sql/internal/termui"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive question and query session",
	Args:  cobra.NoArgs,
	RunE:  runShell,
}

func runShell(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, _, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Interrupts are handled by readline
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{withLLM: true})
	if err != nil {
		return err
	}
	defer a.close()

	ui := termui.New(os.Stdout, noColor)
	opts := shell.Options{
		Controller:  session.NewController(uuid.NewString(), a.deps()),
		Catalog:     a.catalog,
		UI:          ui,
		HistoryFile: shellHistoryFile(),
	}
	if a.history != nil {
		opts.History = a.history
	}

	ui.PrintWelcome(a.db.ConnString(), a.catalog.Schema(), len(a.catalog.ListTables()))
	return shell.New(opts).Run(ctx)
}

// shellHistoryFile returns the readline history path, or "" to disable it
func shellHistoryFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "pgedge-nl2sql")
	if err := os.MkdirAll(dir, 0700); err != nil {
		logging.Warn("shell_history_unavailable", "error", err)
		return ""
	}
	return filepath.Join(dir, "shell_history")
}
