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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pgedge-nl2sql/internal/executor"
	"pgedge-nl2sql/internal/session"
	"pgedge-nl2sql/internal/termui"
	"pgedge-nl2sql/internal/tsv"
)

var (
	askRun    bool
	askFormat string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Generate SQL for a question, and optionally run it",
	Example: `  pgedge-nl2sql ask "Which ten customers rented the most films?"
  pgedge-nl2sql ask --run --format tsv "How many films are in each category?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askRun, "run", false, "Run the generated SQL and print the result")
	askCmd.Flags().StringVarP(&askFormat, "format", "f", "table", "Result format: table, tsv or json")
}

func runAsk(cmd *cobra.Command, args []string) error {
	switch askFormat {
	case "table", "tsv", "json":
	default:
		return fmt.Errorf("unknown format %q (use table, tsv or json)", askFormat)
	}
	cmd.SilenceUsage = true

	cfg, _, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appOptions{withLLM: true})
	if err != nil {
		return err
	}
	defer a.close()

	ctrl := session.NewController(uuid.NewString(), a.deps())
	if err := ctrl.SubmitQuestion(ctx, strings.Join(args, " ")); err != nil {
		return err
	}

	view := ctrl.Snapshot()
	if view.GenerationError != "" {
		return errors.New(view.GenerationError)
	}

	out := cmd.OutOrStdout()
	if !askRun {
		fmt.Fprintln(out, view.SQL)
		return nil
	}

	// Keep stdout clean for machine-readable formats
	if askFormat == "table" {
		termui.New(os.Stdout, noColor).PrintSQL(view.SQL)
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), view.SQL)
	}

	if err := ctrl.Run(ctx); err != nil {
		return err
	}
	result := ctrl.Snapshot().Result
	if result.IsError() {
		return errors.New(result.Error)
	}
	return writeResult(out, result, askFormat)
}

// writeResult prints rs in the requested format
func writeResult(w io.Writer, rs *executor.ResultSet, format string) error {
	switch format {
	case "tsv":
		return tsv.Write(w, rs)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rs)
	default:
		return termui.RenderTable(w, rs)
	}
}
