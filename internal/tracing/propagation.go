package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToAgent scopes the run context to one agent's execution.
// It keeps the trace and run IDs and replaces the agent identity.
func PropagateToAgent(ctx context.Context, agentID string) context.Context {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = NewTraceID()
	}

	newCtx := WithTraceID(ctx, traceID)
	newCtx = WithAgentID(newCtx, agentID)

	if runID := GetRunID(ctx); runID != "" {
		newCtx = WithRunID(newCtx, runID)
	}

	return newCtx
}

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.RunID != "" {
		logger = logger.With().Str("run_id", tc.RunID).Logger()
	}
	if tc.AgentID != "" {
		logger = logger.With().Str("agent_id", tc.AgentID).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}
