package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finsight/internal/observability"
	"finsight/internal/tracing"
	"finsight/pkg/backend"
	"finsight/pkg/trace"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrModelUnavailable is returned when the agent's model provider fails
// after all retries. Augmentation failures never surface as this error;
// they degrade the prompt instead.
var ErrModelUnavailable = errors.New("model unavailable")

// Config binds an agent to a role and behavior. Set at construction,
// immutable for the agent's lifetime.
type Config struct {
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Instructions []string `json:"instructions,omitempty"`
	Model        string   `json:"model"`
	Temperature  float64  `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	MaxRetries   int      `json:"max_retries,omitempty"`
	EmitTrace    bool     `json:"emit_trace,omitempty"`
}

// DefaultConfig returns default agent configuration
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o",
		Temperature: 0.7,
		MaxTokens:   4096,
		MaxRetries:  3,
		EmitTrace:   true,
	}
}

// Agent turns a query into a natural-language answer, optionally
// consulting augmentation backends whose results are folded into the
// prompt. The model provider is always present and renders the answer.
type Agent struct {
	config        Config
	provider      LLMProvider
	augmentations []backend.Invoker
	logger        zerolog.Logger
}

// New creates an agent. The provider is required; augmentations may be
// empty for a model-only agent.
func New(cfg Config, provider LLMProvider, augmentations []backend.Invoker, logger zerolog.Logger) (*Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("model provider is required")
	}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Agent{
		config:        cfg,
		provider:      provider,
		augmentations: augmentations,
		logger:        logger.With().Str("agent", cfg.Name).Logger(),
	}, nil
}

// Name returns the agent's identity used in traces and merge labels.
func (a *Agent) Name() string {
	return a.config.Name
}

// Role returns the agent's role description.
func (a *Agent) Role() string {
	return a.config.Role
}

// Run executes one query. Lifecycle events go to sink; the returned
// answer is the model's text. Sampling makes output non-deterministic,
// so callers must not compare answers across runs.
func (a *Agent) Run(ctx context.Context, query string, sink trace.Sink) (string, error) {
	ctx = tracing.NewAgentRunContext(ctx, a.config.Name)
	ctx, span := tracing.StartSpan(
		ctx,
		"finsight.agent",
		"agent.run",
		attribute.String("agent", a.config.Name),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, a.logger)
	start := time.Now()

	if sink == nil {
		sink = trace.Discard{}
	}

	a.emit(sink, trace.Thought(a.config.Name, a.thought(query)))

	sections := a.augment(ctx, query, sink, logger)
	prompt := buildPrompt(query, sections)
	system := buildSystemPrompt(a.config.Role, a.config.Instructions)

	response, err := a.callWithRetry(ctx, LLMRequest{
		Model:        a.config.Model,
		SystemPrompt: system,
		Prompt:       prompt,
		Temperature:  a.config.Temperature,
		MaxTokens:    a.config.MaxTokens,
	})
	if err != nil {
		observability.RecordAgentRun(a.config.Name, time.Since(start), false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("Model call failed")
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	observability.RecordAgentRun(a.config.Name, time.Since(start), true)
	logger.Info().
		Dur("duration", time.Since(start)).
		Int("augmentations", len(sections)).
		Msg("Agent run complete")

	return response.Content, nil
}

// thought is the rationale placeholder emitted before the model call.
func (a *Agent) thought(query string) string {
	if len(a.augmentations) == 0 {
		return fmt.Sprintf("Answering %q directly from the model", query)
	}
	return fmt.Sprintf("Gathering context from %d backend(s) before answering %q", len(a.augmentations), query)
}

// augment invokes each augmentation backend in declared order. A failed
// backend produces a degraded section noting the gap, never an abort.
func (a *Agent) augment(ctx context.Context, query string, sink trace.Sink, logger zerolog.Logger) []promptSection {
	sections := make([]promptSection, 0, len(a.augmentations))

	for _, inv := range a.augmentations {
		a.emit(sink, trace.Action(a.config.Name, fmt.Sprintf("invoking %s: %s", inv.Name(), query)))

		callStart := time.Now()
		result, err := inv.Invoke(ctx, backend.Request{Query: query})
		if err != nil {
			observability.RecordBackendInvocation(inv.Name(), time.Since(callStart), false, string(backend.KindOf(err)))
			observability.RecordBackendAudit(ctx, inv.Name(), a.config.Name, "failure", nil)
			logger.Warn().Err(err).Str("backend", inv.Name()).Msg("Augmentation failed; degrading prompt")

			ev := trace.ActionResult(a.config.Name, fmt.Sprintf("%s failed: %v", inv.Name(), err), nil)
			ev.Failed = true
			a.emit(sink, ev)

			sections = append(sections, promptSection{
				Backend:  inv.Name(),
				Degraded: true,
				Text:     fmt.Sprintf("(%s was unavailable: %v)", inv.Name(), err),
			})
			continue
		}

		observability.RecordBackendInvocation(inv.Name(), time.Since(callStart), true, "")
		observability.RecordBackendAudit(ctx, inv.Name(), a.config.Name, "success", nil)
		a.emit(sink, trace.ActionResult(a.config.Name, result.Text, result.Fields))

		sections = append(sections, promptSection{Backend: inv.Name(), Text: result.Text})
	}

	return sections
}

// emit records a trace event unless tracing is disabled for this agent.
func (a *Agent) emit(sink trace.Sink, event trace.Event) {
	if !a.config.EmitTrace {
		return
	}
	observability.RecordTraceEvent(string(event.Kind))
	sink.Record(event)
}

// callWithRetry calls the provider with exponential backoff retry
func (a *Agent) callWithRetry(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	maxRetries := a.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		response, err := a.provider.Call(ctx, request)
		if err == nil {
			return response, nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return nil, err
		}

		if attempt == maxRetries-1 {
			break
		}

		// Exponential backoff: 1s, 2s, 4s
		delayMs := 1000 * (1 << attempt)
		a.logger.Info().
			Int("attempt", attempt+1).
			Int("delayMs", delayMs).
			Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(delayMs) * time.Millisecond):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}

// validateConfig validates agent configuration
func validateConfig(config Config) error {
	if config.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}
