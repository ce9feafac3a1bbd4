package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey is the context key for the run handle
	RunIDKey ContextKey = "run_id"
	// AgentIDKey is the context key for agent identity
	AgentIDKey ContextKey = "agent_id"
)

// TraceContext holds tracing information for one query run
type TraceContext struct {
	TraceID string
	RunID   string
	AgentID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRunID adds a run handle to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithAgentID adds an agent identity to the context
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, AgentIDKey, agentID)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetRunID retrieves the run handle from the context
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// GetAgentID retrieves the agent identity from the context
func GetAgentID(ctx context.Context) string {
	if agentID, ok := ctx.Value(AgentIDKey).(string); ok {
		return agentID
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID: GetTraceID(ctx),
		RunID:   GetRunID(ctx),
		AgentID: GetAgentID(ctx),
	}
}

// NewRequestContext creates a new context for a query with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// NewAgentRunContext scopes a run context to one agent's execution. The
// trace and run IDs are inherited; the agent identity is replaced.
func NewAgentRunContext(ctx context.Context, agentID string) context.Context {
	return WithAgentID(ctx, agentID)
}
