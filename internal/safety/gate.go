/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package safety decides whether candidate SQL may be sent to the database.
//
// The gate is a best-effort screen on top of the read-only session and
// read-only transaction every query runs in; it is not a SQL parser.
package safety

import (
	"fmt"
	"strings"
	"sync"

	"pgedge-nl2sql/internal/apperr"
	"pgedge-nl2sql/internal/config"
)

// Rejection messages shown in place of a result
const (
	MsgNotSelect       = "Only SELECT queries are allowed"
	MsgMultiStatements = "Only a single SELECT statement is allowed"
)

// Mode selects how much of the candidate is inspected
type Mode string

const (
	// ModeStrict requires a leading SELECT and exactly one statement
	ModeStrict Mode = config.SafetyModeStrict
	// ModePrefix only requires a leading SELECT
	ModePrefix Mode = config.SafetyModePrefix
)

// ParseMode converts a configured mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStrict, "":
		return ModeStrict, nil
	case ModePrefix:
		return ModePrefix, nil
	default:
		return "", fmt.Errorf("unknown safety mode %q", s)
	}
}

// Approve reports whether candidate, trimmed and lower-cased, starts with
// "select". Comments are not skipped, so "-- select\nDELETE ..." passes.
func Approve(candidate string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(candidate)), "select")
}

// Gate applies the configured policy
type Gate struct {
	Mode Mode
}

// NewGate creates a gate for mode
func NewGate(mode Mode) Gate {
	return Gate{Mode: mode}
}

// Check returns nil when candidate may run, or an apperr safety rejection
func (g Gate) Check(candidate string) error {
	if !Approve(candidate) {
		return apperr.Safety(MsgNotSelect)
	}
	if g.Mode == ModePrefix {
		return nil
	}
	if CountStatements(candidate) != 1 {
		return apperr.Safety(MsgMultiStatements)
	}
	return nil
}

// Policy is a gate whose mode can be changed while requests are running
type Policy struct {
	mu   sync.RWMutex
	mode Mode
}

// NewPolicy creates a policy starting in mode
func NewPolicy(mode Mode) *Policy {
	return &Policy{mode: mode}
}

// SetMode switches the mode used by later checks
func (p *Policy) SetMode(mode Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = mode
}

// Mode returns the current mode
func (p *Policy) Mode() Mode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

// Check applies the current mode to candidate
func (p *Policy) Check(candidate string) error {
	return NewGate(p.Mode()).Check(candidate)
}
