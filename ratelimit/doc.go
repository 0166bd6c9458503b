// Package ratelimit provides the sliding-window request limiter used in
// front of sensitive operations (MFA verification, token issuance, webhook
// registration). Limits are keyed by an arbitrary string, conventionally
// "action:identity".
//
// # Window semantics
//
// Each key holds the timestamps of requests inside a continuously moving
// window. A check prunes timestamps older than the window, denies when the
// remainder has reached the maximum, and otherwise records the request. A
// denial reports how long until the oldest surviving timestamp leaves the
// window, which maps directly onto an HTTP Retry-After header.
//
// Two stores expose the same [Store] contract: [MemoryStore], the default,
// whose state is process-local (each instance of a horizontally scaled
// deployment enforces its own independent window, a documented limitation),
// and [RedisStore], backed by a per-key sorted set, for deployments that
// need one shared window across instances.
package ratelimit
