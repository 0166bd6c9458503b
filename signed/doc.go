// Package signed implements the HMAC-SHA256 artifacts the platform hands out
// and verifies: stateless subject-bound tokens (impersonation sessions,
// unsubscribe links) and webhook payload signatures.
//
// A token is the colon-joined subject fields followed by the hex MAC over
// those fields, e.g. "adminID:targetID:9f2c…". Verification is two-step by
// contract: the MAC check proves the server minted the token, and the caller
// must additionally bind the token's subject to the presented identity (the
// signature alone is never sufficient authorization). [Signer.Verify] does
// both; [Signer.Parse] does only the MAC check for callers that bind
// themselves.
//
// Tokens carry no embedded expiry. Impersonation lifetime is bounded by
// cookie max-age and unsubscribe links do not expire at all; that is a
// recorded policy decision, not an oversight, so expiry must not be added
// here without changing the consumers.
package signed
