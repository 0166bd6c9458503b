// Package vaultgate is the security core of a service-shop business
// platform: rate limiting, at-rest encryption of third-party credentials and
// MFA secrets, TOTP multi-factor authentication with single-use backup
// codes, HMAC-signed artifacts (impersonation sessions, unsubscribe links,
// webhook authenticity), and the request-level access gate that composes
// them.
//
// The package is designed for concurrent server workloads: [Engine] methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// vaultgate owns only the cryptographic and rate-limiting primitives and the
// policy that orchestrates them. The business data model (clients, quotes,
// invoices, jobs) and its CRUD handlers are collaborators reached through
// the [IdentityDirectory] and [CredentialStore] interfaces, never imported.
//
// # Failure policy
//
// Everything fails closed. Cryptographic and signature failures never
// distinguish their cause; token issuance for unknown identities is
// success-shaped to prevent enumeration; misconfiguration (short master key,
// empty signing secret) is a Build-time error, never a per-request one.
// Security-relevant outcomes are recorded through the audit dispatcher as a
// side effect, never as the primary response.
package vaultgate
