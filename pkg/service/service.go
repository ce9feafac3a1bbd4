// Package service is the external surface of the research core. It
// exposes exactly two dispatch entry points (Submit and Trace) plus
// helpers to wait for and fetch a finished run. Rendering, input
// collection, and export belong to the caller.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"finsight/internal/observability"
	"finsight/internal/tracing"
	"finsight/pkg/team"
	"finsight/pkg/trace"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// ErrConfig marks a missing or unusable credential. It is raised
// before any network call is attempted.
var ErrConfig = errors.New("configuration error")

// ErrUnknownHandle is returned for handles this process never issued
// or has already discarded.
var ErrUnknownHandle = errors.New("unknown run handle")

// ErrRunActive is returned when a result is requested before the run
// finished.
var ErrRunActive = errors.New("run still executing")

// Handle identifies one submitted run for later trace and result
// retrieval.
type Handle string

// CredentialCheck reports whether dispatch may proceed. It runs before
// any backend is touched.
type CredentialCheck func() error

// Service owns the run registry. Each submitted query executes
// independently; runs share no mutable state.
type Service struct {
	team    *team.Team
	check   CredentialCheck
	sink    trace.Sink
	logger  zerolog.Logger
	timeout time.Duration

	mu   sync.RWMutex
	runs map[Handle]*run
	// active counts runs still executing; finished runs stay in the
	// registry for retrieval but no longer count as active.
	active int
}

type run struct {
	recorder *trace.Recorder
	done     chan struct{}
	response team.Response
	err      error
}

// Config holds service configuration.
type Config struct {
	Team *team.Team
	// Check blocks dispatch when credentials are missing. Optional.
	Check CredentialCheck
	// Sink receives live trace events in addition to the per-run
	// recorder. Optional.
	Sink trace.Sink
	// Timeout bounds each run end to end.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// New creates the service facade.
func New(cfg Config) (*Service, error) {
	if cfg.Team == nil {
		return nil, fmt.Errorf("team is required")
	}
	return &Service{
		team:    cfg.Team,
		check:   cfg.Check,
		sink:    cfg.Sink,
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
		runs:    make(map[Handle]*run),
	}, nil
}

// Submit validates the query and credentials, then starts the run
// asynchronously. The returned handle feeds Trace, Wait and Result.
func (s *Service) Submit(ctx context.Context, query string) (Handle, error) {
	if s.check != nil {
		if err := s.check(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate run handle: %w", err)
	}
	handle := Handle(id)

	r := &run{
		recorder: trace.NewRecorder(),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.runs[handle] = r
	s.active++
	observability.SetActiveRuns(s.active)
	s.mu.Unlock()

	runCtx := tracing.WithRunID(context.WithoutCancel(ctx), string(handle))
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, s.timeout)
		go func() {
			<-r.done
			cancel()
		}()
	}

	observability.RecordRunAudit(runCtx, string(handle), "run_submitted", "pending", map[string]interface{}{
		"query_len": len(query),
	})

	go s.execute(runCtx, handle, r, query)

	return handle, nil
}

func (s *Service) execute(ctx context.Context, handle Handle, r *run, query string) {
	defer close(r.done)

	sink := trace.Sink(r.recorder)
	if s.sink != nil {
		sink = trace.NewFanOut(r.recorder, trace.NewGuard(s.sink, s.logger))
	}
	// Shared sinks see events from every concurrent run; the stamp is
	// what lets a stream consumer tell them apart.
	sink = trace.NewRunStamp(sink, string(handle))

	response, err := s.team.Run(ctx, query, sink)
	r.response = response
	r.err = err

	status := "success"
	if err != nil {
		status = "failure"
	}
	observability.RecordRunAudit(ctx, string(handle), "run_completed", status, nil)

	s.mu.Lock()
	s.active--
	observability.SetActiveRuns(s.active)
	s.mu.Unlock()
}

// Trace returns the events recorded so far for the handle, in append
// order. It is safe to call while the run is still executing.
func (s *Service) Trace(handle Handle) ([]trace.Event, error) {
	s.mu.RLock()
	r, ok := s.runs[handle]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownHandle
	}
	return r.recorder.Events(), nil
}

// Wait blocks until the run finishes or ctx is done, then returns the
// response.
func (s *Service) Wait(ctx context.Context, handle Handle) (team.Response, error) {
	s.mu.RLock()
	r, ok := s.runs[handle]
	s.mu.RUnlock()
	if !ok {
		return team.Response{}, ErrUnknownHandle
	}

	select {
	case <-ctx.Done():
		return team.Response{}, ctx.Err()
	case <-r.done:
		return r.response, r.err
	}
}

// Result returns a finished run's response without blocking.
func (s *Service) Result(handle Handle) (team.Response, error) {
	s.mu.RLock()
	r, ok := s.runs[handle]
	s.mu.RUnlock()
	if !ok {
		return team.Response{}, ErrUnknownHandle
	}

	select {
	case <-r.done:
		return r.response, r.err
	default:
		return team.Response{}, ErrRunActive
	}
}

// Discard removes a finished run from the registry. Events never
// outlive the response that owns them.
func (s *Service) Discard(handle Handle) {
	s.mu.Lock()
	delete(s.runs, handle)
	s.mu.Unlock()
}
