package vaultgate

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryDirectory is an in-memory IdentityDirectory for tests and the demo
// binary. Safe for concurrent use.
type MemoryDirectory struct {
	mu         sync.RWMutex
	identities map[string]*Identity
}

// NewMemoryDirectory returns an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{identities: make(map[string]*Identity)}
}

// Put inserts or replaces an identity.
func (d *MemoryDirectory) Put(identity *Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *identity
	d.identities[identity.ID] = &cp
}

// Update applies fn to a stored identity under the directory lock.
func (d *MemoryDirectory) Update(id string, fn func(*Identity)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.identities[id]
	if !ok {
		return false
	}
	fn(identity)
	return true
}

// IdentityByID implements IdentityDirectory.
func (d *MemoryDirectory) IdentityByID(_ context.Context, id string) (*Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	identity, ok := d.identities[id]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	cp := *identity
	return &cp, nil
}

// IdentityByEmail implements IdentityDirectory. Matching is
// case-insensitive.
func (d *MemoryDirectory) IdentityByEmail(_ context.Context, email string) (*Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, identity := range d.identities {
		if strings.EqualFold(identity.Email, email) {
			cp := *identity
			return &cp, nil
		}
	}
	return nil, ErrIdentityNotFound
}

// MemoryCredentialStore is the reference CredentialStore. All mutations run
// under one mutex, which makes ConsumeBackupCode the required atomic
// read-modify-write.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	creds map[string]*MFACredential
}

// NewMemoryCredentialStore returns an empty store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: make(map[string]*MFACredential)}
}

// MFACredential returns the stored credential or (nil, nil) when absent.
func (s *MemoryCredentialStore) MFACredential(_ context.Context, identityID string) (*MFACredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[identityID]
	if !ok {
		return nil, nil
	}
	return cloneCredential(cred), nil
}

// SaveMFACredential inserts or replaces the credential.
func (s *MemoryCredentialStore) SaveMFACredential(_ context.Context, cred *MFACredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneCredential(cred)
	cp.UpdatedAt = time.Now()
	s.creds[cred.IdentityID] = cp
	return nil
}

// DeleteMFACredential removes the credential, including all backup codes.
// Deleting an absent credential is a no-op.
func (s *MemoryCredentialStore) DeleteMFACredential(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, identityID)
	return nil
}

// ReplaceBackupCodes swaps the whole batch of stored hashes.
func (s *MemoryCredentialStore) ReplaceBackupCodes(_ context.Context, identityID string, hashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[identityID]
	if !ok {
		return ErrStoreUnavailable
	}
	cred.BackupCodeHashes = append([]string(nil), hashes...)
	cred.UpdatedAt = time.Now()
	return nil
}

// ConsumeBackupCode removes the first hash for which matches returns true.
// The scan and the removal happen under the store mutex, so a code can be
// consumed at most once even under concurrent presentation.
func (s *MemoryCredentialStore) ConsumeBackupCode(_ context.Context, identityID string, matches func(hash string) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[identityID]
	if !ok {
		return false, nil
	}
	for i, hash := range cred.BackupCodeHashes {
		if matches(hash) {
			cred.BackupCodeHashes = append(cred.BackupCodeHashes[:i], cred.BackupCodeHashes[i+1:]...)
			cred.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func cloneCredential(cred *MFACredential) *MFACredential {
	cp := *cred
	cp.EncryptedSecret = append([]byte(nil), cred.EncryptedSecret...)
	cp.EncryptedPending = append([]byte(nil), cred.EncryptedPending...)
	cp.BackupCodeHashes = append([]string(nil), cred.BackupCodeHashes...)
	return &cp
}
