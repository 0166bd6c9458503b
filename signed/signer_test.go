package signed

import (
	"errors"
	"strings"
	"testing"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := New([]byte("server-signing-secret-for-tests"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestNewRejectsEmptySecret(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	s := newTestSigner(t)

	token, err := s.Token("admin-1", "user-42")
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if err := s.Verify(token, "admin-1", "user-42"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	fields, err := s.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(fields) != 2 || fields[0] != "admin-1" || fields[1] != "user-42" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestTokenRejectsUnsafeFields(t *testing.T) {
	s := newTestSigner(t)

	for _, fields := range [][]string{nil, {""}, {"a:b"}, {"ok", ""}} {
		if _, err := s.Token(fields...); !errors.Is(err, ErrInvalidField) {
			t.Fatalf("fields %v: expected ErrInvalidField, got %v", fields, err)
		}
	}
}

func TestVerifyRejectsMutation(t *testing.T) {
	s := newTestSigner(t)

	token, err := s.Token("admin-1", "user-42")
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	for i := range token {
		mutated := []byte(token)
		if mutated[i] == 'x' {
			mutated[i] = 'y'
		} else {
			mutated[i] = 'x'
		}
		if err := s.Verify(string(mutated), "admin-1", "user-42"); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("mutated byte %d: expected ErrInvalidSignature, got %v", i, err)
		}
	}
}

func TestVerifyBindsSubject(t *testing.T) {
	s := newTestSigner(t)

	// Well-formed token for admin-1 must not verify under admin-2.
	token, err := s.Token("admin-1", "user-42")
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if err := s.Verify(token, "admin-2", "user-42"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for wrong admin, got %v", err)
	}
	if err := s.Verify(token, "admin-1"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for arity mismatch, got %v", err)
	}
}

func TestVerifyRejectsOtherSecret(t *testing.T) {
	a := newTestSigner(t)
	b, err := New([]byte("a different secret"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	token, err := a.Token("user-7")
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if err := b.Verify(token, "user-7"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestParseRejectsMalformedTokens(t *testing.T) {
	s := newTestSigner(t)

	for _, token := range []string{"", ":", "nomac", "subject:", ":mac"} {
		if _, err := s.Parse(token); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("token %q: expected ErrInvalidSignature, got %v", token, err)
		}
	}
}

func TestPayloadSignatureRoundTrip(t *testing.T) {
	secret := []byte("per-registration-secret")
	body := []byte(`{"event":"invoice.paid","timestamp":"2024-01-05T10:00:00Z","data":{}}`)

	header := SignPayload(secret, body)
	if !strings.HasPrefix(header, SignaturePrefix) {
		t.Fatalf("missing scheme tag: %q", header)
	}
	if err := VerifyPayload(secret, body, header); err != nil {
		t.Fatalf("VerifyPayload failed: %v", err)
	}
}

func TestPayloadSignatureRejectsTamperedBody(t *testing.T) {
	secret := []byte("per-registration-secret")
	body := []byte(`{"event":"invoice.paid"}`)
	header := SignPayload(secret, body)

	for i := range body {
		mutated := make([]byte, len(body))
		copy(mutated, body)
		mutated[i] ^= 0x01
		if err := VerifyPayload(secret, mutated, header); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("mutated byte %d: expected ErrInvalidSignature, got %v", i, err)
		}
	}
}

func TestPayloadSignatureRejectsMissingHeader(t *testing.T) {
	secret := []byte("per-registration-secret")
	body := []byte("{}")

	for _, header := range []string{"", "sha256=", "md5=abc", SignPayload([]byte("other"), body)} {
		if err := VerifyPayload(secret, body, header); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("header %q: expected ErrInvalidSignature, got %v", header, err)
		}
	}
}
