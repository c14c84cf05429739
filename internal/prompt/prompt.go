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

	"pgedge-nl2sql/internal/catalog"
)

// SystemInstruction is sent as the system message of every generation request
const SystemInstruction = "You are an expert in translating natural language to SQL."

const (
	preamble = "You are an expert SQL assistant. Given the database schema and a natural language question,\n" +
		"write a single optimized PostgreSQL SELECT statement using proper table joins if needed.\n" +
		"Return only the SQL statement.\n\n"
	schemaHeader   = "Schema:\n"
	questionHeader = "\n\nQuestion:\n"
	sqlTrailer     = "\n\nSQL:"
)

// ErrEmptyQuestion is returned for a question that is blank after trimming
var ErrEmptyQuestion = errors.New("question is empty")

// Prompt is the user message sent to the language model
type Prompt string

// Build interpolates the schema and question into the generation template.
// The question is embedded as given apart from surrounding whitespace.
func Build(question string, schema catalog.SchemaText) (Prompt, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	var sb strings.Builder
	sb.Grow(len(preamble) + len(schema) + len(question) + 64)
	sb.WriteString(preamble)
	sb.WriteString(schemaHeader)
	sb.WriteString(string(schema))
	sb.WriteString(questionHeader)
	sb.WriteString(question)
	sb.WriteString(sqlTrailer)

	return Prompt(sb.String()), nil
}

// String returns the prompt text
func (p Prompt) String() string {
	return string(p)
}
