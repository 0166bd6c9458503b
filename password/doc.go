// Package password provides argon2id hashing in PHC string format. It hashes
// two kinds of credential: account passwords (checked before MFA disable and
// backup-code regeneration) and the single-use backup codes themselves,
// which are only ever persisted as hashes.
//
// Comparison is constant-time. Parameter floors are enforced at construction
// so a misconfigured hasher fails at startup, not per request.
package password
