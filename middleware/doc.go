// Package middleware wraps the vaultgate engine as net/http middleware.
//
// Gate evaluates a fixed, short-circuiting policy per request: cross-origin
// rejection for state-changing methods, public-path allow-list,
// authentication, forced password change, MFA completion, disabled-account
// enforcement, and role protection for administrative paths. The first
// failing check decides the outcome; page routes redirect, API routes get a
// JSON error.
//
// The gate is stateless: it uses only request headers and cookies plus the
// session-identity callback supplied in the Policy.
package middleware
