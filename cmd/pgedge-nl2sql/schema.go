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

	"github.com/spf13/cobra"
)

var schemaTablesOnly bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the schema text given to the language model",
	Args:  cobra.NoArgs,
	RunE:  runSchema,
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaTablesOnly, "tables", false, "List table names only")
}

func runSchema(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, _, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Inspecting the schema is not recorded
	cfg.History.Enabled = false

	a, err := newApp(cmd.Context(), cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	if schemaTablesOnly {
		for _, name := range a.catalog.ListTables() {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	if text := a.catalog.SchemaText(); text != "" {
		fmt.Fprintln(out, text)
	}
	return nil
}
