package vaultgate

import (
	"context"
	"strings"
	"time"

	"github.com/shopworks/vaultgate/internal"
)

// IssuePasswordResetToken mints a single-use reset token for the account
// behind email. The response is success-shaped regardless of whether the
// account exists: an unknown or disabled account yields (nil, nil) so the
// HTTP layer can answer identically and reveal nothing. Issuing replaces
// any previously live reset token for the same account.
func (e *Engine) IssuePasswordResetToken(ctx context.Context, email, remoteAddr string) (*IssuedToken, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	emailKey := strings.ToLower(strings.TrimSpace(email))
	if err := e.checkLimit(ctx, "token_issue:"+emailKey, e.config.RateLimit.TokenIssue, "", remoteAddr); err != nil {
		return nil, err
	}

	identity, err := e.identities.IdentityByEmail(ctx, emailKey)
	if err != nil || identity == nil {
		return nil, nil
	}
	if identity.Disabled {
		e.RecordDisabledAccess(identity.ID, remoteAddr)
		return nil, nil
	}

	token, err := e.issueToken(ctx, PurposePasswordReset, identity.ID, e.config.Tokens.ResetTTL)
	if err != nil {
		return nil, err
	}
	e.emitAudit(auditEventResetTokenIssued, true, identity.ID, "", remoteAddr, nil, nil)
	return token, nil
}

// ConsumePasswordResetToken redeems a presented reset value. Consumption is
// atomic delete-on-read: the same value can never redeem twice, and an
// expired value is inert even if guessed. Every failure is the one generic
// ErrTokenExpiredOrUnknown.
func (e *Engine) ConsumePasswordResetToken(ctx context.Context, value string) (string, error) {
	return e.consumeToken(ctx, PurposePasswordReset, value, auditEventResetTokenConsumed)
}

// IssueEmailVerificationToken mints a single-use address-confirmation token
// for a known identity, replacing any live one.
func (e *Engine) IssueEmailVerificationToken(ctx context.Context, identityID string) (*IssuedToken, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	identity, err := e.identityByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if identity.Disabled {
		e.RecordDisabledAccess(identity.ID, "")
		return nil, ErrAccountDisabled
	}
	if err := e.checkLimit(ctx, "token_issue:"+identity.ID, e.config.RateLimit.TokenIssue, identity.ID, ""); err != nil {
		return nil, err
	}

	token, err := e.issueToken(ctx, PurposeEmailVerification, identity.ID, e.config.Tokens.VerificationTTL)
	if err != nil {
		return nil, err
	}
	e.emitAudit(auditEventVerifyTokenIssued, true, identity.ID, "", "", nil, nil)
	return token, nil
}

// ConsumeEmailVerificationToken redeems a presented verification value,
// with the same single-use and expiry semantics as password reset.
func (e *Engine) ConsumeEmailVerificationToken(ctx context.Context, value string) (string, error) {
	return e.consumeToken(ctx, PurposeEmailVerification, value, auditEventVerifyTokenConsumed)
}

func (e *Engine) issueToken(ctx context.Context, purpose TokenPurpose, identityID string, ttl time.Duration) (*IssuedToken, error) {
	value, err := internal.NewTokenValue()
	if err != nil {
		return nil, err
	}
	expiresAt := e.now().Add(ttl)

	if err := e.tokens.Replace(ctx, purpose, identityID, internal.HashTokenValue(value), expiresAt); err != nil {
		return nil, err
	}

	e.metricInc(MetricTokenIssued)
	return &IssuedToken{
		IdentityID: identityID,
		Value:      value,
		ExpiresAt:  expiresAt,
	}, nil
}

func (e *Engine) consumeToken(ctx context.Context, purpose TokenPurpose, value, auditEvent string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	identityID, err := e.tokens.Consume(ctx, purpose, internal.HashTokenValue(value))
	if err != nil {
		e.metricInc(MetricTokenRejected)
		e.emitAudit(auditEvent, false, "", "", "", err, nil)
		return "", err
	}

	e.metricInc(MetricTokenConsumed)
	e.emitAudit(auditEvent, true, identityID, "", "", nil, nil)
	return identityID, nil
}
