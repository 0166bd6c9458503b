package vaultgate

import (
	"errors"
	"time"

	"github.com/shopworks/vaultgate/password"
)

// Config carries every tunable of the security core. A Config is validated
// once at Build time and treated as immutable afterwards.
type Config struct {
	Cipher    CipherConfig
	Signing   SigningConfig
	TOTP      TOTPConfig
	RateLimit RateLimitConfig
	Tokens    TokenConfig
	Password  password.Config
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// CipherConfig configures the at-rest SecretCipher. MasterKey accepts 64
// hex characters, 44 standard-base64 characters, or 32 raw bytes; anything
// else fails Build.
type CipherConfig struct {
	MasterKey []byte
}

// SigningConfig configures HMAC artifacts and the MFA-completion marker.
type SigningConfig struct {
	// Secret is the server-held MAC secret. Must be non-empty.
	Secret []byte
	// MFAMarkerTTL bounds the MFA-completion cookie. Default 3 days.
	MFAMarkerTTL time.Duration
	// ImpersonationTTL bounds the impersonation cookie. Default 30 minutes.
	ImpersonationTTL time.Duration
}

// TOTPConfig configures provisioning and verification.
type TOTPConfig struct {
	Issuer           string
	Digits           int // default 6
	Period           int // seconds per step, default 30
	Skew             int // accepted steps either side of now, default 1
	BackupCodeCount  int // default 10
	BackupCodeLength int // hex characters per code, default 8
}

// RateLimitConfig holds the windows applied to sensitive operations. Every
// limit is per identity; VerifyPerIP additionally throttles the
// unauthenticated login-time verification by originating address.
type RateLimitConfig struct {
	SweepInterval time.Duration // memory store GC, default 1m

	Verify      Limit // MFA verification, per identity
	VerifyPerIP Limit // MFA verification, per network address
	Setup       Limit // setup/confirm/disable/regenerate, per identity
	TokenIssue  Limit // single-use token issuance, per identity
}

// Limit is one sliding-window budget.
type Limit struct {
	Window time.Duration
	Max    int
}

// TokenConfig holds single-use server-token lifetimes.
type TokenConfig struct {
	ResetTTL        time.Duration // password reset, default 30m
	VerificationTTL time.Duration // email verification, default 24h
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

// MetricsConfig controls the counter registry.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration. Key material is
// deliberately absent and must be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Signing: SigningConfig{
			MFAMarkerTTL:     72 * time.Hour,
			ImpersonationTTL: 30 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:           "vaultgate",
			Digits:           6,
			Period:           30,
			Skew:             1,
			BackupCodeCount:  10,
			BackupCodeLength: 8,
		},
		RateLimit: RateLimitConfig{
			SweepInterval: time.Minute,
			Verify:        Limit{Window: time.Minute, Max: 5},
			VerifyPerIP:   Limit{Window: time.Minute, Max: 15},
			Setup:         Limit{Window: time.Minute, Max: 5},
			TokenIssue:    Limit{Window: 15 * time.Minute, Max: 3},
		},
		Tokens: TokenConfig{
			ResetTTL:        30 * time.Minute,
			VerificationTTL: 24 * time.Hour,
		},
		Password: password.DefaultConfig(),
		Audit:    AuditConfig{Enabled: true, BufferSize: 256},
		Metrics:  MetricsConfig{Enabled: true},
	}
}

func (c *Config) validate() error {
	if len(c.Signing.Secret) == 0 {
		return errors.New("signing secret is required")
	}
	if c.TOTP.Issuer == "" {
		return errors.New("totp issuer is required")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("totp digits must be 6..8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("totp period must be positive")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("totp skew must not be negative")
	}
	if c.TOTP.BackupCodeCount <= 0 || c.TOTP.BackupCodeLength < 8 {
		return errors.New("backup code batch misconfigured")
	}
	if c.TOTP.BackupCodeLength%2 != 0 {
		return errors.New("backup code length must be an even hex length")
	}
	for _, limit := range []Limit{c.RateLimit.Verify, c.RateLimit.VerifyPerIP, c.RateLimit.Setup, c.RateLimit.TokenIssue} {
		if limit.Window <= 0 || limit.Max <= 0 {
			return errors.New("rate limit windows must be positive")
		}
	}
	if c.Tokens.ResetTTL <= 0 || c.Tokens.VerificationTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.Signing.MFAMarkerTTL <= 0 || c.Signing.ImpersonationTTL <= 0 {
		return errors.New("signed artifact lifetimes must be positive")
	}
	return nil
}
