package vaultgate

import (
	"context"
	"crypto/subtle"
)

// StartImpersonation mints a signed impersonation token binding the acting
// admin to the target. The token carries no embedded expiry; its lifetime
// is bounded by the cookie max-age the HTTP layer applies.
func (e *Engine) StartImpersonation(ctx context.Context, adminID, targetID string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	admin, err := e.identityByID(ctx, adminID)
	if err != nil {
		return "", err
	}
	if admin.Disabled {
		e.RecordDisabledAccess(admin.ID, "")
		return "", ErrAccountDisabled
	}
	if admin.Role != RoleAdmin {
		return "", ErrForbidden
	}

	target, err := e.identityByID(ctx, targetID)
	if err != nil {
		return "", err
	}
	if target.Disabled {
		return "", ErrAccountDisabled
	}

	token, err := e.signer.Token(admin.ID, target.ID)
	if err != nil {
		return "", err
	}

	e.metricInc(MetricImpersonationStarted)
	e.emitAudit(auditEventImpersonationStarted, true, target.ID, admin.ID, "", nil, nil)
	return token, nil
}

// VerifyImpersonation checks a presented token's MAC and binds it to the
// acting admin: a token minted for a different admin fails exactly like a
// forged one. The signature alone is never sufficient authorization.
func (e *Engine) VerifyImpersonation(token, presentedAdminID string) (targetID string, err error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	fields, err := e.signer.Parse(token)
	if err != nil {
		return "", ErrInvalidSignature
	}
	if len(fields) != 2 {
		return "", ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(fields[0]), []byte(presentedAdminID)) != 1 {
		return "", ErrInvalidSignature
	}
	return fields[1], nil
}

// StopImpersonation records the end of an impersonation session. The token
// itself is stateless; ending the session is the HTTP layer clearing the
// cookie, so this is purely an audit side effect.
func (e *Engine) StopImpersonation(adminID, targetID string) {
	if e == nil {
		return
	}
	e.emitAudit(auditEventImpersonationStopped, true, targetID, adminID, "", nil, nil)
}

// UnsubscribeToken mints the identity-scoped token embedded in unsubscribe
// links. Deliberately no expiry: the link must keep working from old
// emails. Recorded policy decision, revisit before changing.
func (e *Engine) UnsubscribeToken(identityID string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	return e.signer.Token(identityID)
}

// VerifyUnsubscribe validates an unsubscribe token and returns the identity
// it was minted for.
func (e *Engine) VerifyUnsubscribe(token string) (identityID string, err error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	fields, err := e.signer.Parse(token)
	if err != nil {
		return "", ErrInvalidSignature
	}
	if len(fields) != 1 {
		return "", ErrInvalidSignature
	}
	return fields[0], nil
}
