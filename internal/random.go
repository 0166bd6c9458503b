// Package internal holds random-value helpers shared by the engine. Nothing
// here is part of the public surface.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const tokenValueBytes = 32

// RandomHex returns chars lowercase hex characters of cryptographic
// randomness. chars must be even.
func RandomHex(chars int) (string, error) {
	if chars <= 0 || chars%2 != 0 {
		return "", errors.New("hex length must be positive and even")
	}
	raw := make([]byte, chars/2)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// NewTokenValue returns a high-entropy single-use token value, base64url
// without padding.
func NewTokenValue() (string, error) {
	raw := make([]byte, tokenValueBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashTokenValue is the digest under which token values are stored; the
// plaintext value never reaches the store.
func HashTokenValue(value string) [32]byte {
	return sha256.Sum256([]byte(value))
}
