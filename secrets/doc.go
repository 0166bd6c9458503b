// Package secrets provides the at-rest encryption primitive for values that
// must never be stored in the clear: third-party OAuth tokens, confirmed and
// pending MFA shared secrets, and per-registration webhook signing secrets.
//
// Encryption is AES-256-GCM with a fresh random 96-bit nonce per call. The
// produced blob is nonce ‖ ciphertext ‖ tag; the authentication tag is checked
// before any plaintext is returned, so a tampered or wrong-key blob always
// fails with [ErrDecryptionFailed] and never yields corrupted plaintext.
//
// # What this package must NOT do
//
//   - Distinguish "wrong key" from "tampered data" in its errors (oracle).
//   - Read configuration from the process environment. The master key is
//     passed to [New] explicitly; a key that does not resolve to 32 bytes is
//     a constructor error, never a per-call one.
package secrets
