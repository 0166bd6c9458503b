package vaultgate

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types recorded by the engine. Security-relevant outcomes are
// always recorded as a side effect, never as the primary response.
const (
	auditEventMFASetupStarted        = "mfa_setup_started"
	auditEventMFAEnabled             = "mfa_enabled"
	auditEventMFADisabled            = "mfa_disabled"
	auditEventMFASuccess             = "mfa_success"
	auditEventMFAFailure             = "mfa_failure"
	auditEventMFARateLimited         = "mfa_rate_limited"
	auditEventBackupCodeUsed         = "backup_code_used"
	auditEventBackupCodesGenerated   = "backup_codes_generated"
	auditEventBackupCodesRegenerated = "backup_codes_regenerated"
	auditEventImpersonationStarted   = "impersonation_started"
	auditEventImpersonationStopped   = "impersonation_stopped"
	auditEventResetTokenIssued       = "reset_token_issued"
	auditEventResetTokenConsumed     = "reset_token_consumed"
	auditEventVerifyTokenIssued      = "verification_token_issued"
	auditEventVerifyTokenConsumed    = "verification_token_consumed"
	auditEventDisabledAccountAccess  = "disabled_account_access"
	auditEventInvalidPassword        = "invalid_password_attempt"
)

// AuditEvent is one recorded security outcome.
type AuditEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	EventType  string            `json:"event_type"`
	IdentityID string            `json:"identity_id,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	IP         string            `json:"ip,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the dispatcher. Emit must not block
// longer than the passed context allows.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards everything.
type NoOpSink struct{}

// Emit implements AuditSink.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel for in-process
// consumers.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan AuditEvent, buffer)}
}

// Emit implements AuditSink.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the receive side.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON document per line to an io.Writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink wraps w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

// Emit implements AuditSink.
func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
