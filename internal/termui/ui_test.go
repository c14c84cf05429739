/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package termui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"pgedge-nl2sql/internal/executor"
	"pgedge-nl2sql/internal/history"
)

func TestNewOnBufferDisablesDecoration(t *testing.T) {
	var buf bytes.Buffer
	ui := New(&buf, false)
	if !ui.noColor || ui.RenderMarkdown {
		t.Errorf("non-terminal output should disable color and markdown: %+v", ui)
	}
	if IsTerminal(&buf) {
		t.Error("buffer reported as terminal")
	}
}

func TestRenderTable(t *testing.T) {
	rs := &executor.ResultSet{
		Columns: []executor.Column{{Name: "film_id", Type: "INT4"}, {Name: "title", Type: "TEXT"}},
		Rows: [][]any{
			{int64(1), "Academy Dinosaur"},
			{int64(2), nil},
		},
	}

	var buf bytes.Buffer
	if err := RenderTable(&buf, rs); err != nil {
		t.Fatalf("RenderTable() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{"FILM_ID", "TITLE", "Academy Dinosaur", "NULL", "(2 rows)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderTableSingularRowCount(t *testing.T) {
	rs := &executor.ResultSet{
		Columns: []executor.Column{{Name: "count", Type: "INT8"}},
		Rows:    [][]any{{int64(1000)}},
	}
	var buf bytes.Buffer
	_ = RenderTable(&buf, rs)
	if !strings.HasSuffix(buf.String(), "(1 row)\n") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	ui := New(&buf, true)

	ui.PrintResult(executor.ErrorResult("Only SELECT queries are allowed"))
	if got := buf.String(); got != "Error: Only SELECT queries are allowed\n" {
		t.Errorf("error result output = %q", got)
	}

	buf.Reset()
	ui.PrintResult(nil)
	if !strings.Contains(buf.String(), "No results yet") {
		t.Errorf("nil result output = %q", buf.String())
	}
}

func TestPrintSQLPlain(t *testing.T) {
	var buf bytes.Buffer
	ui := New(&buf, true)

	ui.PrintSQL("SELECT title FROM film")
	if buf.String() != "SELECT title FROM film\n" {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	ui.PrintSQL("  ")
	if !strings.Contains(buf.String(), "No SQL staged") {
		t.Errorf("empty SQL output = %q", buf.String())
	}
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	ui := New(&buf, true)

	ui.PrintHistory([]history.Entry{
		{Kind: history.KindGenerate, Question: "How many films?", SQL: "SELECT COUNT(*) FROM film", Outcome: "ok", CreatedAt: time.Now()},
		{Kind: history.KindPreview, Table: "actor", Outcome: "ok", RowCount: 10, CreatedAt: time.Now()},
		{Kind: history.KindRun, SQL: "SELECT\n  title\nFROM film", Outcome: "execution_error", CreatedAt: time.Now()},
	})
	out := buf.String()
	for _, want := range []string{"How many films?", "actor", "SELECT title FROM film", "execution_error"} {
		if !strings.Contains(out, want) {
			t.Errorf("history output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	ui.PrintHistory(nil)
	if !strings.Contains(buf.String(), "No history") {
		t.Errorf("empty history output = %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate(strings.Repeat("x", 20), 10); got != "xxxxxxx..." {
		t.Errorf("truncate() = %q", got)
	}
}

func TestShowThinkingReturnsOnDone(t *testing.T) {
	var buf bytes.Buffer
	ui := New(&buf, true)
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		ui.ShowThinking(context.Background(), done)
		close(finished)
	}()
	close(done)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("ShowThinking did not return after done was closed")
	}
	if buf.Len() != 0 {
		t.Errorf("non-terminal output should not animate, got %q", buf.String())
	}
}
