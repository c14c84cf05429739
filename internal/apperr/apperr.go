/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package apperr defines the error taxonomy shared by the query pipeline.
//
// Startup errors abort the process. Generation, safety and execution errors
// are recoverable: they are shown to the user in place of the expected
// result and never alter the staged SQL or the table inventory.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure
type Kind int

const (
	KindUnknown Kind = iota
	KindStartup
	KindGeneration
	KindSafety
	KindExecution
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindStartup:
		return "startup_error"
	case KindGeneration:
		return "generation_error"
	case KindSafety:
		return "safety_rejection"
	case KindExecution:
		return "execution_error"
	default:
		return "unknown_error"
	}
}

// Error is a classified pipeline error. Message is what the user sees.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Startup wraps err as a fatal startup error
func Startup(what string, err error) *Error {
	return &Error{Kind: KindStartup, Message: fmt.Sprintf("%s: %v", what, err), Err: err}
}

// Generation wraps a language-model failure
func Generation(err error) *Error {
	return &Error{Kind: KindGeneration, Message: err.Error(), Err: err}
}

// Safety builds a safety rejection with a fixed message
func Safety(message string) *Error {
	return &Error{Kind: KindSafety, Message: message}
}

// Execution wraps a database failure; the message is the driver's text
func Execution(err error) *Error {
	return &Error{Kind: KindExecution, Message: err.Error(), Err: err}
}

// KindOf returns the kind of err, or KindUnknown when err is not classified
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-facing message for err
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}
