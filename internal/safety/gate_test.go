/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package safety

import (
	"testing"

	"pgedge-nl2sql/internal/apperr"
)

func TestApprove(t *testing.T) {
	tests := []struct {
		candidate string
		want      bool
	}{
		{"SELECT * FROM film", true},
		{"  select 1", true},
		{"\n\tSeLeCt title FROM film", true},
		{"selectx", true},
		{"SELECT 1; DROP TABLE film", true},
		{"-- select\nDELETE FROM t", false},
		{"WITH x AS (SELECT 1) SELECT * FROM x", false},
		{"UPDATE film SET title='x'", false},
		{"DELETE FROM film", false},
		{"", false},
		{"   ", false},
		{"(SELECT 1)", false},
	}

	for _, tt := range tests {
		t.Run(tt.candidate, func(t *testing.T) {
			if got := Approve(tt.candidate); got != tt.want {
				t.Errorf("Approve(%q) = %v, want %v", tt.candidate, got, tt.want)
			}
		})
	}
}

func TestGateCheck(t *testing.T) {
	tests := []struct {
		name      string
		mode      Mode
		candidate string
		wantMsg   string
	}{
		{"strict single", ModeStrict, "SELECT * FROM film", ""},
		{"strict trailing semicolon", ModeStrict, "SELECT * FROM film;", ""},
		{"strict chained statement", ModeStrict, "SELECT 1; DROP TABLE film", MsgMultiStatements},
		{"strict update", ModeStrict, "UPDATE film SET title='x'", MsgNotSelect},
		{"strict semicolon in literal", ModeStrict, "SELECT ';DROP TABLE film' AS x", ""},
		{"prefix chained statement", ModePrefix, "SELECT 1; DROP TABLE film", ""},
		{"prefix update", ModePrefix, "UPDATE film SET title='x'", MsgNotSelect},
		{"prefix comment trick", ModePrefix, "-- select\nDELETE FROM t", MsgNotSelect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGate(tt.mode).Check(tt.candidate)
			if tt.wantMsg == "" {
				if err != nil {
					t.Errorf("Check(%q) error = %v, want nil", tt.candidate, err)
				}
				return
			}
			if !apperr.Is(err, apperr.KindSafety) {
				t.Fatalf("Check(%q) error = %v, want safety rejection", tt.candidate, err)
			}
			if apperr.Message(err) != tt.wantMsg {
				t.Errorf("Check(%q) message = %q, want %q", tt.candidate, apperr.Message(err), tt.wantMsg)
			}
		})
	}
}

func TestZeroGateIsStrict(t *testing.T) {
	var g Gate
	if err := g.Check("SELECT 1; SELECT 2"); err == nil {
		t.Error("zero-value gate should reject chained statements")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"strict", ModeStrict, false},
		{"PREFIX", ModePrefix, false},
		{"", ModeStrict, false},
		{"lenient", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseMode(%q) = %q, %v", tt.input, got, err)
			}
		})
	}
}

func TestPolicySwitchesMode(t *testing.T) {
	p := NewPolicy(ModeStrict)
	chained := "SELECT 1; DROP TABLE x"

	if err := p.Check(chained); err == nil {
		t.Fatal("strict policy should reject chained statements")
	}

	p.SetMode(ModePrefix)
	if p.Mode() != ModePrefix {
		t.Fatalf("Mode() = %q, want %q", p.Mode(), ModePrefix)
	}
	if err := p.Check(chained); err != nil {
		t.Errorf("prefix policy should pass chained SELECT, got %v", err)
	}
	if err := p.Check("DELETE FROM t"); err == nil {
		t.Error("prefix policy should still reject non-SELECT statements")
	}
}
