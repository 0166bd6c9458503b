package vaultgate

import (
	"context"
	"time"
)

// Built-in roles. The gate's administrative-path check requires RoleAdmin.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Identity is the engine's view of an account, resolved through the
// business layer's directory. It carries exactly what the security core
// needs: role, status flags, the password hash for pre-destructive-action
// checks, and whether MFA completion is required.
type Identity struct {
	ID                 string
	Email              string
	Role               string
	Disabled           bool
	MustChangePassword bool
	MFAEnabled         bool
	PasswordHash       string // PHC argon2id
}

// IdentityDirectory is the session/identity lookup owned by the business
// data layer. Lookup failures of any kind are treated as not-found by the
// engine so enumeration-sensitive paths stay uniform.
type IdentityDirectory interface {
	IdentityByID(ctx context.Context, id string) (*Identity, error)
	IdentityByEmail(ctx context.Context, email string) (*Identity, error)
}

// MFACredential is the stored MFA state for one identity. The confirmed
// secret and the pending secret are SecretCipher blobs, never plaintext.
// Enabled=true implies EncryptedSecret is a confirmed secret; a pending
// secret is never used for verification.
type MFACredential struct {
	IdentityID       string
	EncryptedSecret  []byte
	EncryptedPending []byte
	Enabled          bool
	BackupCodeHashes []string
	UpdatedAt        time.Time
}

// CredentialStore persists MFA credentials. Owned by the business data
// layer; the in-memory implementation in this package is the reference for
// tests and single-process deployments.
//
// ConsumeBackupCode must be one atomic read-modify-write: it scans the
// stored hashes, removes the first for which matches returns true, and
// reports whether one was removed. Two concurrent presentations of the same
// code must not both succeed.
type CredentialStore interface {
	MFACredential(ctx context.Context, identityID string) (*MFACredential, error)
	SaveMFACredential(ctx context.Context, cred *MFACredential) error
	DeleteMFACredential(ctx context.Context, identityID string) error
	ReplaceBackupCodes(ctx context.Context, identityID string, hashes []string) error
	ConsumeBackupCode(ctx context.Context, identityID string, matches func(hash string) bool) (bool, error)
}

// MFASetup is returned by BeginMFASetup. Secret is the raw provisioning
// secret, shown exactly once.
type MFASetup struct {
	Secret string
	URI    string
}

// MFAEnrollment is returned by ConfirmMFASetup. BackupCodes are plaintext
// exactly once; only their hashes are stored.
type MFAEnrollment struct {
	BackupCodes []string
}

// IssuedToken is a freshly minted single-use server token. Value is the
// high-entropy secret to deliver out of band; it is never persisted in the
// clear.
type IssuedToken struct {
	IdentityID string
	Value      string
	ExpiresAt  time.Time
}
