package trace

import (
	"sync"

	"finsight/internal/observability"

	"github.com/rs/zerolog"
)

// Sink receives events as agents execute. A sink is a pure observer: it
// must not influence control flow, and any fault it raises is contained
// by Guard rather than propagated into the run.
type Sink interface {
	Record(event Event)
}

// Recorder is an in-memory append-only sink. It assigns sequence numbers
// in insertion order and is safe for concurrent use, so agents running
// in parallel within one run can share it.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder for a single run.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends the event and stamps its sequence position.
func (r *Recorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.Seq = len(r.events)
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events in insertion order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// FanOut forwards each event to every sink in order.
type FanOut struct {
	sinks []Sink
}

// NewFanOut creates a sink that forwards to all given sinks.
func NewFanOut(sinks ...Sink) *FanOut {
	return &FanOut{sinks: sinks}
}

// Record forwards the event to each sink.
func (f *FanOut) Record(event Event) {
	for _, s := range f.sinks {
		s.Record(event)
	}
}

// RunStamp wraps a sink so every event passing through carries the
// owning run's id. Events from concurrent runs fan into shared sinks
// (the live stream broadcaster); the stamp is what lets a consumer
// attribute each event to its run.
type RunStamp struct {
	sink  Sink
	runID string
}

// NewRunStamp wraps sink, stamping runID onto each event.
func NewRunStamp(sink Sink, runID string) *RunStamp {
	return &RunStamp{sink: sink, runID: runID}
}

// Record stamps the run id and forwards the event.
func (s *RunStamp) Record(event Event) {
	event.RunID = s.runID
	s.sink.Record(event)
}

// LogSink writes events to a zerolog logger at debug level.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs the event.
func (s *LogSink) Record(event Event) {
	s.logger.Debug().
		Str("kind", string(event.Kind)).
		Str("agent", event.Agent).
		Int("seq", event.Seq).
		Bool("failed", event.Failed).
		Msg(event.Payload)
}

// Guard wraps a sink so that a panicking or misbehaving observer can
// never fail the run that feeds it. Faults are logged and swallowed.
type Guard struct {
	sink   Sink
	logger zerolog.Logger
}

// NewGuard wraps sink with panic containment.
func NewGuard(sink Sink, logger zerolog.Logger) *Guard {
	return &Guard{sink: sink, logger: logger}
}

// Record delivers the event, swallowing any panic from the inner sink.
func (g *Guard) Record(event Event) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordTraceEventDropped()
			g.logger.Warn().
				Interface("panic", r).
				Str("kind", string(event.Kind)).
				Str("agent", event.Agent).
				Msg("Trace sink panicked; event dropped")
		}
	}()
	g.sink.Record(event)
}

// Discard is a sink that drops every event.
type Discard struct{}

// Record drops the event.
func (Discard) Record(Event) {}
