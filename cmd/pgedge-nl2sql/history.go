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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pgedge-nl2sql/internal/history"
	"pgedge-nl2sql/internal/termui"
)

var (
	historyLimit   int
	historySession string
	historyKind    string
	historyPrune   time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or prune the local query history",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
	historyCmd.Flags().StringVar(&historySession, "session", "", "Only show entries for this session ID")
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "Only show entries of this kind: generate, run or preview")
	historyCmd.Flags().DurationVar(&historyPrune, "prune-older-than", 0, "Delete entries older than this age (e.g. 720h) instead of listing")
}

func runHistory(cmd *cobra.Command, args []string) error {
	switch historyKind {
	case "", history.KindGenerate, history.KindRun, history.KindPreview:
	default:
		return fmt.Errorf("unknown kind %q", historyKind)
	}
	cmd.SilenceUsage = true

	cfg, _, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("query history is disabled (history.enabled: false)")
	}

	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if historyPrune > 0 {
		removed, err := store.Prune(ctx, time.Now().Add(-historyPrune))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d history entries\n", removed)
		return nil
	}

	entries, err := store.List(ctx, history.Filter{
		SessionID: historySession,
		Kind:      historyKind,
		Limit:     historyLimit,
	})
	if err != nil {
		return err
	}
	termui.New(os.Stdout, noColor).PrintHistory(entries)
	return nil
}
