package vaultgate

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenPurpose namespaces single-use server tokens. At most one live token
// exists per (purpose, identity).
type TokenPurpose string

const (
	// PurposePasswordReset tokens authorize a password reset.
	PurposePasswordReset TokenPurpose = "pwreset"
	// PurposeEmailVerification tokens confirm address ownership.
	PurposeEmailVerification TokenPurpose = "emailverify"
)

// TokenStore persists hashed single-use token values. Replace atomically
// invalidates any previously issued token for the same purpose and identity;
// Consume is atomic delete-on-read, so a value can redeem at most once.
type TokenStore interface {
	Replace(ctx context.Context, purpose TokenPurpose, identityID string, valueHash [32]byte, expiresAt time.Time) error
	Consume(ctx context.Context, purpose TokenPurpose, valueHash [32]byte) (identityID string, err error)
}

const (
	tokenValuePrefix = "sut:"
	tokenIndexPrefix = "suti:"
	tokenMaxRetries  = 4
)

// redisTokenStore is the shared-state TokenStore, one WATCH transaction per
// mutation.
type redisTokenStore struct {
	redis redis.UniversalClient
}

func newRedisTokenStore(client redis.UniversalClient) *redisTokenStore {
	return &redisTokenStore{redis: client}
}

func tokenValueKey(purpose TokenPurpose, valueHash [32]byte) string {
	return tokenValuePrefix + string(purpose) + ":" + hex.EncodeToString(valueHash[:])
}

func tokenIndexKey(purpose TokenPurpose, identityID string) string {
	return tokenIndexPrefix + string(purpose) + ":" + identityID
}

func (s *redisTokenStore) Replace(ctx context.Context, purpose TokenPurpose, identityID string, valueHash [32]byte, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: token already expired", ErrStoreUnavailable)
	}
	indexKey := tokenIndexKey(purpose, identityID)

	for i := 0; i < tokenMaxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			previous, err := tx.Get(ctx, indexKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if previous != "" {
					pipe.Del(ctx, tokenValuePrefix+string(purpose)+":"+previous)
				}
				pipe.Set(ctx, tokenValueKey(purpose, valueHash), identityID, ttl)
				pipe.Set(ctx, indexKey, hex.EncodeToString(valueHash[:]), ttl)
				return nil
			})
			return err
		}, indexKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}
	return fmt.Errorf("%w: token replace contention", ErrStoreUnavailable)
}

func (s *redisTokenStore) Consume(ctx context.Context, purpose TokenPurpose, valueHash [32]byte) (string, error) {
	valueKey := tokenValueKey(purpose, valueHash)

	for i := 0; i < tokenMaxRetries; i++ {
		var identityID string

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			stored, err := tx.Get(ctx, valueKey).Result()
			if err != nil {
				return err
			}
			identityID = stored

			// The index only ever points at the newest token; if this
			// value key still exists it is that token, so dropping both
			// keys is safe.
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, valueKey)
				pipe.Del(ctx, tokenIndexKey(purpose, stored))
				return nil
			})
			return err
		}, valueKey)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return "", ErrTokenExpiredOrUnknown
		case err != nil:
			return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return identityID, nil
	}
	return "", ErrTokenExpiredOrUnknown
}

type memoryToken struct {
	identityID string
	valueHash  [32]byte
	expiresAt  time.Time
}

// memoryTokenStore is the process-local TokenStore. One mutex covers both
// indexes, which gives Consume its delete-on-read atomicity.
type memoryTokenStore struct {
	mu       sync.Mutex
	byValue  map[string]*memoryToken // purpose:hexhash
	byHolder map[string]*memoryToken // purpose:identity
	now      func() time.Time
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{
		byValue:  make(map[string]*memoryToken),
		byHolder: make(map[string]*memoryToken),
		now:      time.Now,
	}
}

func (s *memoryTokenStore) Replace(_ context.Context, purpose TokenPurpose, identityID string, valueHash [32]byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	holderKey := string(purpose) + ":" + identityID
	if previous, ok := s.byHolder[holderKey]; ok {
		delete(s.byValue, string(purpose)+":"+hex.EncodeToString(previous.valueHash[:]))
	}

	token := &memoryToken{identityID: identityID, valueHash: valueHash, expiresAt: expiresAt}
	s.byHolder[holderKey] = token
	s.byValue[string(purpose)+":"+hex.EncodeToString(valueHash[:])] = token
	return nil
}

func (s *memoryTokenStore) Consume(_ context.Context, purpose TokenPurpose, valueHash [32]byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	valueKey := string(purpose) + ":" + hex.EncodeToString(valueHash[:])
	token, ok := s.byValue[valueKey]
	if !ok {
		return "", ErrTokenExpiredOrUnknown
	}

	delete(s.byValue, valueKey)
	delete(s.byHolder, string(purpose)+":"+token.identityID)

	// Expired tokens are inert even when guessed, but they still get
	// removed above.
	if s.now().After(token.expiresAt) {
		return "", ErrTokenExpiredOrUnknown
	}
	return token.identityID, nil
}
