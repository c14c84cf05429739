/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package prompt

import (
	"errors"
	"strings"
	"testing"

	"pgedge-nl2sql/internal/catalog"
)

func TestBuild(t *testing.T) {
	schema := catalog.SchemaText("film: film_id (integer)\nfilm: title (text)")

	got, err := Build("How many films are there?", schema)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := "You are an expert SQL assistant. Given the database schema and a natural language question,\n" +
		"write a single optimized PostgreSQL SELECT statement using proper table joins if needed.\n" +
		"Return only the SQL statement.\n\n" +
		"Schema:\nfilm: film_id (integer)\nfilm: title (text)\n\n" +
		"Question:\nHow many films are there?\n\n" +
		"SQL:"
	if got.String() != want {
		t.Errorf("Build() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildEmptyQuestion(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t"} {
		p, err := Build(q, "film: film_id (integer)")
		if !errors.Is(err, ErrEmptyQuestion) {
			t.Errorf("Build(%q) error = %v, want ErrEmptyQuestion", q, err)
		}
		if p != "" {
			t.Errorf("Build(%q) = %q, want empty prompt", q, p)
		}
	}
}

func TestBuildEmbedsQuestionVerbatim(t *testing.T) {
	q := "List titles containing 'Love'; ignore case"
	p, err := Build("  "+q+"\n", "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(p.String(), "Question:\n"+q+"\n\nSQL:") {
		t.Errorf("question not embedded verbatim: %q", p)
	}
	if !strings.Contains(p.String(), "Schema:\n\n\nQuestion:") {
		t.Errorf("empty schema should leave an empty schema section: %q", p)
	}
}
