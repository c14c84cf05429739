/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pgedge-nl2sql/internal/apperr"
	"pgedge-nl2sql/internal/prompt"
)

// ErrEmptyCompletion is returned when the model answers with only whitespace
var ErrEmptyCompletion = errors.New("language model returned an empty completion")

// Completer is a chat completion backend
type Completer interface {
	Complete(ctx context.Context, messages []Message, temperature float64) (string, error)
	ProviderName() string
}

// Generator turns prompts into candidate SQL. The backend can be swapped at
// runtime when the configuration is reloaded.
type Generator struct {
	mu     sync.RWMutex
	client Completer
}

// NewGenerator creates a generator backed by client
func NewGenerator(client Completer) *Generator {
	return &Generator{client: client}
}

// SetClient replaces the backend used by subsequent calls
func (g *Generator) SetClient(client Completer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.client = client
}

func (g *Generator) backend() Completer {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.client
}

// Generate asks the model for SQL answering p at temperature 0. The trimmed
// completion is returned as is; it is not parsed or cleaned. Every failure
// is an apperr generation error.
func (g *Generator) Generate(ctx context.Context, p prompt.Prompt) (string, error) {
	client := g.backend()
	if client == nil {
		return "", apperr.Generation(errors.New("language model is not configured"))
	}

	messages := []Message{
		{Role: "system", Content: prompt.SystemInstruction},
		{Role: "user", Content: p.String()},
	}

	text, err := client.Complete(ctx, messages, 0)
	if err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			err = ErrEmptyCompletion
		}
	}
	if err != nil {
		return "", apperr.Generation(fmt.Errorf("Error from %s: %w", client.ProviderName(), err))
	}

	return text, nil
}
