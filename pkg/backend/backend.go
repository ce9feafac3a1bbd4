// Package backend defines the uniform contract over remote capabilities:
// web search, financial data, and anything else an agent folds into its
// prompt. Every concrete client wraps exactly one external API and
// normalizes its output into a Result.
//
// Invariants:
// - One outbound network call per Invoke; retries are a caller concern.
// - Failures surface as a tagged *Error, never as a panic.
// - A missing field in a Result is the Unavailable sentinel, distinct
//   from a failed lookup.
package backend

import (
	"context"
	"fmt"
	"strings"
)

// Unavailable marks a schema field the remote source does not carry for
// this asset. Consumers can distinguish it from a lookup failure, which
// surfaces as an error instead.
const Unavailable = "N/A"

// Request carries a query plus backend-specific parameters. It is built
// per call and never persisted.
type Request struct {
	// Query is the user text or derived lookup key. Must be non-empty.
	Query string
	// Symbol is the ticker for financial lookups.
	Symbol string
	// TopN bounds the number of results for search backends. Zero means
	// the backend default.
	TopN int
}

// Validate checks the request before any network call.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Query) == "" && strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("backend request: query cannot be empty")
	}
	if r.TopN < 0 {
		return fmt.Errorf("backend request: top_n cannot be negative")
	}
	return nil
}

// Result is the normalized output of one backend invocation: free text,
// a mapping of named fields, or both.
type Result struct {
	// Text is the rendered textual form, ready for prompt embedding.
	Text string
	// Fields holds schema'd values for structured backends. Missing
	// per-asset values carry the Unavailable sentinel.
	Fields map[string]string
}

// Invoker is the uniform backend client contract.
type Invoker interface {
	// Invoke performs one outbound call. It honors ctx cancellation and
	// the client's own wall-clock budget, and returns a tagged *Error on
	// failure.
	Invoke(ctx context.Context, req Request) (Result, error)
	// Name identifies the backend in trace events and logs.
	Name() string
}
