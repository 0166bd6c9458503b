// Package webhook delivers platform events (invoice paid, job completed,
// quote accepted) to registered third-party URLs and authenticates inbound
// calls from them.
//
// Every registration carries its own signing secret, shown once at creation
// and stored only as a SecretCipher blob. Outbound payloads are signed
// sha256=<hex HMAC-SHA256(secret, rawBody)>; inbound requests are verified
// by recomputing the same MAC over the exact raw body bytes and are
// rejected without processing when the header is absent or wrong.
//
// Delivery is fire-and-forget relative to the triggering request: one
// goroutine per target with a bounded timeout, failures recorded on the
// registration but never retried automatically, and targets dispatched
// independently so one failure cannot delay or fail another.
package webhook
