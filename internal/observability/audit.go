package observability

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditEvent is one append-only line in the audit trail: who did what
// to which run, backend, or config document, and how it went.
type AuditEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor,omitempty"`
	Action    string                 `json:"action"`
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// AuditLogger appends audit events to a log file and mirrors them onto
// the active span when one is recording.
type AuditLogger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	file   *os.File
}

var (
	auditOnce sync.Once
	auditInst *AuditLogger
)

// GetAuditLogger returns the process audit logger, defaulting to stderr
// until InitAuditLogger points it at a file.
func GetAuditLogger() *AuditLogger {
	auditOnce.Do(func() {
		if auditInst == nil {
			auditInst = &AuditLogger{
				logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
			}
		}
	})
	return auditInst
}

// InitAuditLogger directs the audit trail to an append-only file.
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	auditInst = &AuditLogger{
		logger: zerolog.New(file).With().Timestamp().Logger(),
		file:   file,
	}
	return nil
}

// Record appends one event. When ctx carries a valid span the event is
// stamped with its trace id and added as a span event.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.actor", event.Actor),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	line := a.logger.Log().
		Str("type", event.Type).
		Str("actor", event.Actor).
		Str("status", event.Status).
		Str("trace_id", event.TraceID)
	if event.Metadata != nil {
		line = line.Interface("metadata", event.Metadata)
	}
	line.Msg(event.Action)
}

// Close releases the audit file, if one was opened.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	return a.file.Close()
}

// RecordRunAudit logs a run lifecycle transition keyed by its handle.
func RecordRunAudit(ctx context.Context, handle, action, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "run",
		Actor:    handle,
		Action:   action,
		Status:   status,
		Metadata: metadata,
	})
}

// RecordBackendAudit logs one augmentation backend invocation by an agent.
func RecordBackendAudit(ctx context.Context, backendName, agent, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "backend",
		Actor:    agent,
		Action:   "invoke:" + backendName,
		Status:   status,
		Metadata: metadata,
	})
}

// RecordConfigAudit logs a configuration change such as a hot reload.
func RecordConfigAudit(ctx context.Context, action, actor string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "config",
		Actor:    actor,
		Action:   action,
		Status:   "success",
		Metadata: metadata,
	})
}
