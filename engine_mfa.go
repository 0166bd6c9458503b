package vaultgate

import (
	"context"
	"fmt"

	"github.com/shopworks/vaultgate/internal"
)

// BeginMFASetup generates a fresh shared secret for the identity and stores
// it encrypted in the pending slot. The pending secret is never trusted for
// verification; it only becomes live after ConfirmMFASetup. The returned
// raw secret and provisioning URI are shown exactly once.
func (e *Engine) BeginMFASetup(ctx context.Context, identityID string) (*MFASetup, error) {
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
	if err := e.checkLimit(ctx, "mfa_setup:"+identity.ID, e.config.RateLimit.Setup, identity.ID, ""); err != nil {
		return nil, err
	}

	cred, err := e.credentialFor(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	if cred != nil && cred.Enabled {
		return nil, ErrMFAAlreadyEnabled
	}

	raw, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	pending, err := e.cipher.Encrypt(raw)
	if err != nil {
		return nil, err
	}

	if err := e.credentials.SaveMFACredential(ctx, &MFACredential{
		IdentityID:       identity.ID,
		EncryptedPending: pending,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	account := identity.Email
	if account == "" {
		account = identity.ID
	}

	e.emitAudit(auditEventMFASetupStarted, true, identity.ID, "", "", nil, nil)
	return &MFASetup{
		Secret: secretBase32,
		URI:    e.totp.ProvisionURI(secretBase32, account),
	}, nil
}

// ConfirmMFASetup consumes a first code computed against the pending
// secret. On success the secret is promoted to confirmed, the pending slot
// is cleared, MFA is enabled, and a fresh batch of backup codes is
// returned in plaintext exactly once.
func (e *Engine) ConfirmMFASetup(ctx context.Context, identityID, code string) (*MFAEnrollment, error) {
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
	if err := e.checkLimit(ctx, "mfa_confirm:"+identity.ID, e.config.RateLimit.Setup, identity.ID, ""); err != nil {
		return nil, err
	}

	cred, err := e.credentialFor(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	if cred != nil && cred.Enabled {
		return nil, ErrMFAAlreadyEnabled
	}
	if cred == nil || len(cred.EncryptedPending) == 0 {
		return nil, ErrMFASetupRequired
	}

	secret, err := e.cipher.Decrypt(cred.EncryptedPending)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	if !e.totp.VerifyCode(secret, code, e.now()) {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(auditEventMFAFailure, false, identity.ID, "", "", ErrMFACodeInvalid, nil)
		return nil, ErrMFACodeInvalid
	}

	// Re-seal under a fresh nonce rather than moving the pending blob.
	confirmed, err := e.cipher.Encrypt(secret)
	if err != nil {
		return nil, err
	}
	plainCodes, hashes, err := e.newBackupCodeBatch()
	if err != nil {
		return nil, err
	}

	cred.EncryptedSecret = confirmed
	cred.EncryptedPending = nil
	cred.Enabled = true
	cred.BackupCodeHashes = hashes
	if err := e.credentials.SaveMFACredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricMFAEnabled)
	e.emitAudit(auditEventMFAEnabled, true, identity.ID, "", "", nil, nil)
	e.emitAudit(auditEventBackupCodesGenerated, true, identity.ID, "", "", nil, nil)
	return &MFAEnrollment{BackupCodes: plainCodes}, nil
}

// VerifyMFA checks a presented code against the confirmed secret, falling
// back to the backup-code batch. A matching backup code is consumed
// atomically and can never verify again. Failures are generic: the caller
// never learns which path was attempted. remoteAddr, when non-empty, adds
// the per-network-address limit used during login.
func (e *Engine) VerifyMFA(ctx context.Context, identityID, code, remoteAddr string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	identity, err := e.identityByID(ctx, identityID)
	if err != nil {
		return err
	}
	if identity.Disabled {
		e.RecordDisabledAccess(identity.ID, remoteAddr)
		return ErrAccountDisabled
	}
	if err := e.checkLimit(ctx, "mfa_verify:"+identity.ID, e.config.RateLimit.Verify, identity.ID, remoteAddr); err != nil {
		return err
	}
	if remoteAddr != "" {
		if err := e.checkLimit(ctx, "mfa_verify_ip:"+remoteAddr, e.config.RateLimit.VerifyPerIP, identity.ID, remoteAddr); err != nil {
			return err
		}
	}

	cred, err := e.credentialFor(ctx, identity.ID)
	if err != nil {
		return err
	}
	if cred == nil || !cred.Enabled {
		return ErrMFANotEnabled
	}

	usedBackup, err := e.verifyAgainstCredential(ctx, identity.ID, cred, code)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(auditEventMFAFailure, false, identity.ID, "", remoteAddr, err, nil)
		return err
	}

	e.metricInc(MetricMFASuccess)
	if usedBackup {
		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(auditEventBackupCodeUsed, true, identity.ID, "", remoteAddr, nil, nil)
	}
	e.emitAudit(auditEventMFASuccess, true, identity.ID, "", remoteAddr, nil, nil)
	return nil
}

// DisableMFA clears the confirmed secret, the enabled flag, and every
// backup code. It requires both the account password and a currently valid
// code; failing either leaves the credential untouched.
func (e *Engine) DisableMFA(ctx context.Context, identityID, accountPassword, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	identity, err := e.identityByID(ctx, identityID)
	if err != nil {
		return err
	}
	if identity.Disabled {
		e.RecordDisabledAccess(identity.ID, "")
		return ErrAccountDisabled
	}
	if err := e.checkLimit(ctx, "mfa_disable:"+identity.ID, e.config.RateLimit.Setup, identity.ID, ""); err != nil {
		return err
	}

	cred, err := e.credentialFor(ctx, identity.ID)
	if err != nil {
		return err
	}
	if cred == nil || !cred.Enabled {
		return ErrMFANotEnabled
	}

	if err := e.verifyAccountPassword(identity, accountPassword); err != nil {
		return err
	}
	if _, err := e.verifyAgainstCredential(ctx, identity.ID, cred, code); err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(auditEventMFAFailure, false, identity.ID, "", "", err, nil)
		return err
	}

	if err := e.credentials.DeleteMFACredential(ctx, identity.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricMFADisabled)
	e.emitAudit(auditEventMFADisabled, true, identity.ID, "", "", nil, nil)
	return nil
}

// RegenerateBackupCodes invalidates and replaces the whole batch after a
// password check, independent of the enable/disable cycle. The new codes
// are returned in plaintext exactly once.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, identityID, accountPassword string) ([]string, error) {
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
	if err := e.checkLimit(ctx, "mfa_regen:"+identity.ID, e.config.RateLimit.Setup, identity.ID, ""); err != nil {
		return nil, err
	}

	cred, err := e.credentialFor(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	if cred == nil || !cred.Enabled {
		return nil, ErrMFANotEnabled
	}

	if err := e.verifyAccountPassword(identity, accountPassword); err != nil {
		return nil, err
	}

	plainCodes, hashes, err := e.newBackupCodeBatch()
	if err != nil {
		return nil, err
	}
	if err := e.credentials.ReplaceBackupCodes(ctx, identity.ID, hashes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricBackupCodesRegenerated)
	e.emitAudit(auditEventBackupCodesRegenerated, true, identity.ID, "", "", nil, nil)
	return plainCodes, nil
}

func (e *Engine) credentialFor(ctx context.Context, identityID string) (*MFACredential, error) {
	cred, err := e.credentials.MFACredential(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return cred, nil
}

func (e *Engine) verifyAccountPassword(identity *Identity, accountPassword string) error {
	ok, err := e.hasher.Verify(accountPassword, identity.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(auditEventInvalidPassword, false, identity.ID, "", "", ErrInvalidPassword, nil)
		return ErrInvalidPassword
	}
	return nil
}

// verifyAgainstCredential tries TOTP against the confirmed secret, then
// scans the backup-code batch. The backup consume is a single atomic
// read-modify-write inside the credential store.
func (e *Engine) verifyAgainstCredential(ctx context.Context, identityID string, cred *MFACredential, code string) (usedBackup bool, err error) {
	secret, err := e.cipher.Decrypt(cred.EncryptedSecret)
	if err != nil {
		return false, ErrDecryptionFailed
	}
	if e.totp.VerifyCode(secret, code, e.now()) {
		return false, nil
	}

	consumed, err := e.credentials.ConsumeBackupCode(ctx, identityID, func(hash string) bool {
		ok, verifyErr := e.hasher.Verify(code, hash)
		return verifyErr == nil && ok
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if consumed {
		return true, nil
	}
	return false, ErrMFACodeInvalid
}

func (e *Engine) newBackupCodeBatch() (plain []string, hashes []string, err error) {
	count := e.config.TOTP.BackupCodeCount
	plain = make([]string, 0, count)
	hashes = make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := internal.RandomHex(e.config.TOTP.BackupCodeLength)
		if err != nil {
			return nil, nil, err
		}
		hash, err := e.hasher.Hash(code)
		if err != nil {
			return nil, nil, err
		}
		plain = append(plain, code)
		hashes = append(hashes, hash)
	}
	return plain, hashes, nil
}
