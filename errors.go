package vaultgate

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopworks/vaultgate/secrets"
	"github.com/shopworks/vaultgate/signed"
)

var (
	// ErrEngineNotReady is returned when an Engine method is called before
	// Build wired its dependencies.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrIdentityNotFound is returned when the directory has no record for
	// the presented identity.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrRateLimited marks a denied rate-limit decision. The concrete error
	// is a *RateLimitError carrying the retry-after hint.
	ErrRateLimited = errors.New("rate limited")
	// ErrTokenExpiredOrUnknown covers every single-use token failure:
	// unknown value, already consumed, expired. Callers never learn which.
	ErrTokenExpiredOrUnknown = errors.New("token expired or unknown")
	// ErrMFACodeInvalid is the generic MFA verification failure. It never
	// reveals whether the TOTP or the backup-code path was attempted.
	ErrMFACodeInvalid = errors.New("invalid mfa code")
	// ErrMFANotEnabled is returned when verification is attempted against
	// an identity without confirmed MFA.
	ErrMFANotEnabled = errors.New("mfa not enabled")
	// ErrMFAAlreadyEnabled is returned when setup is attempted over a
	// confirmed credential.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFASetupRequired is returned when confirmation is attempted with
	// no pending secret.
	ErrMFASetupRequired = errors.New("mfa setup not started")
	// ErrInvalidPassword is returned when the account password check fails
	// before a destructive MFA operation.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrAccountDisabled is returned for any operation attempted by a
	// disabled identity, even one holding an otherwise-valid session.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrUnauthorized is returned when no authenticated identity is
	// present.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the identity lacks the role a route
	// requires.
	ErrForbidden = errors.New("forbidden")
	// ErrStoreUnavailable wraps persistence-layer failures.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrDecryptionFailed and ErrInvalidSignature re-export the primitive
	// failures so callers match one taxonomy.
	ErrDecryptionFailed = secrets.ErrDecryptionFailed
	ErrInvalidSignature = signed.ErrInvalidSignature
)

// RateLimitError carries the retry-after hint for a denied check. It
// matches ErrRateLimited under errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfterSeconds())
}

// Is reports a match against ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds is the whole-second wait for a Retry-After header,
// rounded up and at least 1.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
