// Package team composes multiple agents into one aggregate answer.
//
// The team dispatches the same query to every bound agent, bounded at
// one goroutine per agent, and merges their answers in declared order
// regardless of completion order. One failed agent becomes a labeled
// placeholder section; the run fails only when every agent fails.
package team

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"finsight/internal/observability"
	"finsight/internal/tracing"
	"finsight/pkg/agent"
	"finsight/pkg/trace"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrAllAgentsFailed is returned when no agent produced an answer.
// No partial response accompanies it.
var ErrAllAgentsFailed = errors.New("all agents failed")

// ErrEmptyQuery is returned for blank queries before any dispatch.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Config holds team configuration. The agent list order is the merge
// order; it never changes after construction.
type Config struct {
	Name         string    `json:"name"`
	Instructions []string  `json:"instructions,omitempty"`
	MergeMode    MergeMode `json:"merge_mode,omitempty"`
	Model        string    `json:"model,omitempty"`
	Temperature  float64   `json:"temperature,omitempty"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	// Timeout bounds the whole run. Zero means no team-level bound
	// beyond the caller's context.
	Timeout time.Duration `json:"-"`
}

// Team dispatches one query to its agents and merges their answers.
type Team struct {
	config   Config
	agents   []*agent.Agent
	provider agent.LLMProvider
	logger   zerolog.Logger
}

// New creates a team. The provider is only required for MergeModel;
// template merges never call a model.
func New(cfg Config, agents []*agent.Agent, provider agent.LLMProvider, logger zerolog.Logger) (*Team, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("at least one agent is required")
	}
	if cfg.MergeMode == "" {
		cfg.MergeMode = MergeTemplate
	}
	if !ValidMergeMode(cfg.MergeMode) {
		return nil, fmt.Errorf("invalid merge mode: %s", cfg.MergeMode)
	}
	if cfg.MergeMode == MergeModel && provider == nil {
		return nil, fmt.Errorf("merge mode %q requires a model provider", MergeModel)
	}

	return &Team{
		config:   cfg,
		agents:   agents,
		provider: provider,
		logger:   logger.With().Str("team", cfg.Name).Logger(),
	}, nil
}

// Agents returns the declared agent order.
func (t *Team) Agents() []*agent.Agent {
	return t.agents
}

// agentOutcome is one agent's result, indexed back into declared order.
type agentOutcome struct {
	answer string
	err    error
}

// Run executes the query against every agent and returns the merged
// response. sink receives trace events live; the same events are also
// collected into the response in arrival order.
func (t *Team) Run(ctx context.Context, query string, sink trace.Sink) (Response, error) {
	if strings.TrimSpace(query) == "" {
		return Response{}, ErrEmptyQuery
	}

	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"finsight.team",
		"team.run",
		attribute.String("team", t.config.Name),
		attribute.Int("agents", len(t.agents)),
	)
	defer span.End()

	if t.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}

	logger := tracing.LoggerFromContext(ctx, t.logger)
	start := time.Now()

	recorder := trace.NewRecorder()
	runSink := trace.Sink(recorder)
	if sink != nil {
		runSink = trace.NewFanOut(recorder, trace.NewGuard(sink, logger))
	}

	// Fan out, one goroutine per agent. Outcomes land in declared-order
	// slots so the merge is stable no matter which agent finishes last.
	outcomes := make([]agentOutcome, len(t.agents))
	var wg sync.WaitGroup
	for i, a := range t.agents {
		wg.Add(1)
		go func(i int, a *agent.Agent) {
			defer wg.Done()
			answer, err := a.Run(ctx, query, runSink)
			outcomes[i] = agentOutcome{answer: answer, err: err}
		}(i, a)
	}
	wg.Wait()

	sections := make([]Section, len(t.agents))
	failures := 0
	for i, a := range t.agents {
		if err := outcomes[i].err; err != nil {
			failures++
			logger.Warn().Err(err).Str("agent", a.Name()).Msg("Agent failed; substituting placeholder")
			sections[i] = Section{
				Agent:       a.Name(),
				Placeholder: true,
				Reason:      failureReason(ctx, err),
			}
			continue
		}
		sections[i] = Section{Agent: a.Name(), Text: outcomes[i].answer}
	}

	if failures == len(t.agents) {
		observability.RecordTeamRun(time.Since(start), false)
		err := fmt.Errorf("%w: %d of %d", ErrAllAgentsFailed, failures, len(t.agents))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}

	var answer string
	switch t.config.MergeMode {
	case MergeModel:
		answer = t.mergeModel(ctx, sections)
	default:
		answer = mergeTemplate(sections, t.config.Instructions)
	}

	observability.RecordTeamRun(time.Since(start), true)
	logger.Info().
		Dur("duration", time.Since(start)).
		Int("sections", len(sections)).
		Int("placeholders", failures).
		Msg("Team run complete")

	return Response{
		Answer:   answer,
		Sections: sections,
		Events:   recorder.Events(),
	}, nil
}

// failureReason renders a user-facing reason for a placeholder section.
// Timeout-induced failures read as timeouts, not generic model errors.
func failureReason(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "run timed out"
	}
	if errors.Is(err, agent.ErrModelUnavailable) {
		return "model unavailable"
	}
	return err.Error()
}
