package vaultgate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopworks/vaultgate/password"
	"github.com/shopworks/vaultgate/ratelimit"
	"github.com/shopworks/vaultgate/secrets"
	"github.com/shopworks/vaultgate/signed"
)

// Engine is the security core facade. Construct it with [Builder.Build];
// after that every method is safe for concurrent use.
type Engine struct {
	config      Config
	cipher      *secrets.Cipher
	signer      *signed.Signer
	hasher      *password.Hasher
	totp        *totpManager
	rates       ratelimit.Store
	ownedRates  *ratelimit.MemoryStore
	tokens      TokenStore
	identities  IdentityDirectory
	credentials CredentialStore
	audit       *auditDispatcher
	metrics     *Metrics
	now         func() time.Time
}

// Close flushes the audit dispatcher and stops any store the engine owns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.ownedRates != nil {
		e.ownedRates.Close()
	}
}

// Cipher exposes the at-rest SecretCipher for collaborators that store
// third-party credentials (OAuth tokens, webhook secrets).
func (e *Engine) Cipher() *secrets.Cipher {
	return e.cipher
}

// Identities exposes the configured directory to the access gate.
func (e *Engine) Identities() IdentityDirectory {
	return e.identities
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports events lost to a full audit buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// RecordDisabledAccess audits a request that reached the gate with a
// disabled identity. Called by the middleware as a side effect; the
// request outcome is decided there.
func (e *Engine) RecordDisabledAccess(identityID, ip string) {
	if e == nil {
		return
	}
	e.metricInc(MetricDisabledAccountAccess)
	e.emitAudit(auditEventDisabledAccountAccess, false, identityID, "", ip, ErrAccountDisabled, nil)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(eventType string, success bool, identityID, actorID, ip string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp:  e.now().UTC(),
		EventType:  eventType,
		IdentityID: identityID,
		ActorID:    actorID,
		IP:         ip,
		Success:    success,
		Metadata:   metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.audit.Emit(event)
}

// identityByID resolves an identity, folding every directory failure into
// ErrIdentityNotFound.
func (e *Engine) identityByID(ctx context.Context, id string) (*Identity, error) {
	if id == "" {
		return nil, ErrIdentityNotFound
	}
	identity, err := e.identities.IdentityByID(ctx, id)
	if err != nil || identity == nil {
		return nil, ErrIdentityNotFound
	}
	return identity, nil
}

// checkLimit runs one sliding-window check and converts a denial into a
// *RateLimitError, recording the hit. A store failure fails closed.
func (e *Engine) checkLimit(ctx context.Context, key string, limit Limit, identityID, ip string) error {
	decision, err := e.rates.Check(ctx, key, limit.Window, limit.Max)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if decision.Allowed {
		return nil
	}

	e.metricInc(MetricRateLimitHit)
	e.emitAudit(auditEventMFARateLimited, false, identityID, "", ip, ErrRateLimited, map[string]string{"key": key})
	return &RateLimitError{RetryAfter: decision.RetryAfter}
}
