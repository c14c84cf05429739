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
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"pgedge-nl2sql/internal/executor"
)

func TestCLIFlagsOnlyMarksChangedFlags(t *testing.T) {
	if err := rootCmd.PersistentFlags().Parse([]string{"--db-host", "db.example.com", "--safety-mode", "prefix"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	t.Cleanup(func() {
		dbHost, safetyMode = "", ""
		for _, name := range []string{"db-host", "safety-mode"} {
			rootCmd.PersistentFlags().Lookup(name).Changed = false
		}
	})

	flags := cliFlags(rootCmd)
	if !flags.DBHostSet || flags.DBHost != "db.example.com" {
		t.Errorf("DBHost = %q (set %v)", flags.DBHost, flags.DBHostSet)
	}
	if !flags.SafetyModeSet || flags.SafetyMode != "prefix" {
		t.Errorf("SafetyMode = %q (set %v)", flags.SafetyMode, flags.SafetyModeSet)
	}
	if flags.DBPortSet || flags.DBUserSet || flags.ConfigFileSet || flags.LLMProviderSet {
		t.Errorf("unchanged flags reported as set: %+v", flags)
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "shell": false, "ask": false, "schema": false, "history": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestWriteResult(t *testing.T) {
	rs := &executor.ResultSet{
		Columns: []executor.Column{{Name: "title", Type: "TEXT"}, {Name: "length", Type: "INT2"}},
		Rows:    [][]any{{"Academy Dinosaur", int64(86)}},
	}

	t.Run("tsv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResult(&buf, rs, "tsv"); err != nil {
			t.Fatal(err)
		}
		if buf.String() != "title\tlength\nAcademy Dinosaur\t86\n" {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResult(&buf, rs, "json"); err != nil {
			t.Fatal(err)
		}
		var decoded executor.ResultSet
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if len(decoded.Rows) != 1 || decoded.Columns[1].Name != "length" {
			t.Errorf("decoded = %+v", decoded)
		}
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResult(&buf, rs, "table"); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "Academy Dinosaur") || !strings.Contains(buf.String(), "(1 row)") {
			t.Errorf("output = %q", buf.String())
		}
	})
}
