package vaultgate

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopworks/vaultgate/password"
	"github.com/shopworks/vaultgate/ratelimit"
	"github.com/shopworks/vaultgate/secrets"
	"github.com/shopworks/vaultgate/signed"
)

// Builder assembles an Engine. Construction is allocation-only until Build,
// which validates configuration and wires every component; a Builder is
// single-use.
type Builder struct {
	config      Config
	redis       *redis.Client
	identities  IdentityDirectory
	credentials CredentialStore
	auditSink   AuditSink
	rates       ratelimit.Store
	tokens      TokenStore
	built       bool
}

// New returns a Builder loaded with DefaultConfig. Key material must still
// be supplied via WithConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis provides a Redis client. When set, the rate-limit store and the
// single-use token store default to their Redis implementations, sharing
// state across instances.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithIdentities provides the business layer's identity directory.
// Required.
func (b *Builder) WithIdentities(directory IdentityDirectory) *Builder {
	b.identities = directory
	return b
}

// WithCredentials provides the MFA credential store. Required.
func (b *Builder) WithCredentials(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithAuditSink provides the audit destination. Defaults to NoOpSink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRateLimitStore overrides the rate-limit backend.
func (b *Builder) WithRateLimitStore(store ratelimit.Store) *Builder {
	b.rates = store
	return b
}

// WithTokenStore overrides the single-use token backend.
func (b *Builder) WithTokenStore(store TokenStore) *Builder {
	b.tokens = store
	return b
}

// Build validates the configuration and returns a ready Engine.
// Cryptographic misconfiguration (a master key that does not resolve to
// 32 bytes, an empty signing secret) fails here, at startup, not per
// request.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if b.identities == nil {
		return nil, errors.New("identity directory is required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if err := b.config.validate(); err != nil {
		return nil, err
	}

	cipher, err := secrets.New(b.config.Cipher.MasterKey)
	if err != nil {
		return nil, err
	}
	signer, err := signed.New(b.config.Signing.Secret)
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewHasher(b.config.Password)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      b.config,
		cipher:      cipher,
		signer:      signer,
		hasher:      hasher,
		totp:        newTOTPManager(b.config.TOTP),
		identities:  b.identities,
		credentials: b.credentials,
		audit:       newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics:     NewMetrics(b.config.Metrics),
		now:         time.Now,
	}

	switch {
	case b.rates != nil:
		engine.rates = b.rates
	case b.redis != nil:
		engine.rates = ratelimit.NewRedisStore(b.redis)
	default:
		memory := ratelimit.NewMemoryStore(b.config.RateLimit.SweepInterval)
		engine.rates = memory
		engine.ownedRates = memory
	}

	switch {
	case b.tokens != nil:
		engine.tokens = b.tokens
	case b.redis != nil:
		engine.tokens = newRedisTokenStore(b.redis)
	default:
		engine.tokens = newMemoryTokenStore()
	}

	return engine, nil
}
