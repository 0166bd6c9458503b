package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

var (
	// ErrInvalidKey is returned by New when the configured master key does
	// not resolve to exactly 32 usable bytes.
	ErrInvalidKey = errors.New("master key must resolve to 32 bytes")
	// ErrDecryptionFailed covers every decryption failure: truncated blob,
	// flipped bit, wrong key. The cause is deliberately not surfaced.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Cipher encrypts and decrypts stored secrets under a single long-lived key.
// It is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// ParseKey normalizes a configured master key to raw bytes. Accepted
// encodings: 64 hex characters, 44 standard-base64 characters, or 32 raw
// bytes.
func ParseKey(configured []byte) ([]byte, error) {
	switch len(configured) {
	case keySize:
		out := make([]byte, keySize)
		copy(out, configured)
		return out, nil
	case hex.EncodedLen(keySize):
		out := make([]byte, keySize)
		if _, err := hex.Decode(out, configured); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return out, nil
	case 44: // base64.StdEncoding.EncodedLen(32)
		out, err := base64.StdEncoding.DecodeString(string(configured))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		if len(out) != keySize {
			return nil, ErrInvalidKey
		}
		return out, nil
	default:
		return nil, ErrInvalidKey
	}
}

// New builds a Cipher from a configured master key in any encoding accepted
// by [ParseKey].
func New(masterKey []byte) (*Cipher, error) {
	key, err := ParseKey(masterKey)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns
// nonce ‖ ciphertext ‖ tag.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize, nonceSize+len(plaintext)+tagSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. The authentication tag is
// verified before any plaintext is returned.
func (c *Cipher) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < nonceSize+tagSize {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := c.aead.Open(nil, blob[:nonceSize], blob[nonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptString is Encrypt for string values.
func (c *Cipher) EncryptString(plaintext string) ([]byte, error) {
	return c.Encrypt([]byte(plaintext))
}

// DecryptString is Decrypt for string values.
func (c *Cipher) DecryptString(blob []byte) (string, error) {
	plaintext, err := c.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// DecryptOrPlaintext attempts decryption and, on failure, returns the input
// unchanged. It exists only to migrate fields that predate at-rest
// encryption (stored third-party credentials written before the cipher was
// introduced). It must not be used for values that are always encrypted,
// such as MFA secrets, where a decryption failure has to stay a hard error.
func (c *Cipher) DecryptOrPlaintext(stored []byte) []byte {
	plaintext, err := c.Decrypt(stored)
	if err != nil {
		return stored
	}
	return plaintext
}
