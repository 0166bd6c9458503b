package signed

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	fieldSeparator = ":"
	// SignaturePrefix is the scheme tag carried in webhook signature headers.
	SignaturePrefix = "sha256="
)

var (
	// ErrEmptySecret is returned by New for a missing signing secret.
	ErrEmptySecret = errors.New("signing secret must not be empty")
	// ErrInvalidSignature covers every verification failure: malformed
	// token, forged MAC, and subject mismatch. Callers never learn which.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidField is returned when a subject field cannot be encoded
	// unambiguously.
	ErrInvalidField = errors.New("subject field must be non-empty and must not contain a separator")
)

// Signer mints and verifies artifacts under a server-held secret.
// It is safe for concurrent use.
type Signer struct {
	secret []byte
}

// New builds a Signer from the server signing secret.
func New(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	s := &Signer{secret: make([]byte, len(secret))}
	copy(s.secret, secret)
	return s, nil
}

// Token signs the ordered subject fields and returns
// "field1:…:fieldN:<hex MAC>". Fields must be non-empty and separator-free
// so the canonical string cannot be reinterpreted.
func (s *Signer) Token(fields ...string) (string, error) {
	if len(fields) == 0 {
		return "", ErrInvalidField
	}
	for _, f := range fields {
		if f == "" || strings.Contains(f, fieldSeparator) {
			return "", ErrInvalidField
		}
	}

	subject := strings.Join(fields, fieldSeparator)
	return subject + fieldSeparator + s.mac(subject), nil
}

// Parse checks the MAC of a presented token and returns its subject fields.
// Parse alone does NOT authorize anything: the caller must still compare the
// returned subject against the presented identity, or use Verify.
func (s *Signer) Parse(token string) ([]string, error) {
	idx := strings.LastIndex(token, fieldSeparator)
	if idx <= 0 || idx == len(token)-1 {
		return nil, ErrInvalidSignature
	}
	subject, presentedMAC := token[:idx], token[idx+1:]

	if subtle.ConstantTimeCompare([]byte(s.mac(subject)), []byte(presentedMAC)) != 1 {
		return nil, ErrInvalidSignature
	}
	return strings.Split(subject, fieldSeparator), nil
}

// Verify checks the MAC and binds the token to the expected subject fields.
// A well-formed token minted for a different subject fails exactly like a
// forged one.
func (s *Signer) Verify(token string, expected ...string) error {
	fields, err := s.Parse(token)
	if err != nil {
		return err
	}
	if len(fields) != len(expected) {
		return ErrInvalidSignature
	}
	ok := 1
	for i := range fields {
		ok &= subtle.ConstantTimeCompare([]byte(fields[i]), []byte(expected[i]))
	}
	if ok != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func (s *Signer) mac(subject string) string {
	return computeMAC(s.secret, []byte(subject))
}

// SignPayload computes the webhook signature header value for a raw body:
// "sha256=<hex HMAC-SHA256(secret, body)>".
func SignPayload(secret, body []byte) string {
	return SignaturePrefix + computeMAC(secret, body)
}

// VerifyPayload checks an inbound webhook signature header against the exact
// raw body bytes. An absent header, a missing scheme tag, and a forged MAC
// all fail identically.
func VerifyPayload(secret, body []byte, header string) error {
	if !strings.HasPrefix(header, SignaturePrefix) {
		return ErrInvalidSignature
	}
	expected := computeMAC(secret, body)
	presented := header[len(SignaturePrefix):]
	if subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func computeMAC(secret, message []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
