package secrets

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand failed: %v", err)
	}
	return key
}

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := New(testKey(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, plaintext := range []string{"", "x", "oauth-access-token-value", "JBSWY3DPEHPK3PXP"} {
		blob, err := c.EncryptString(plaintext)
		if err != nil {
			t.Fatalf("encrypt failed: %v", err)
		}
		got, err := c.DecryptString(blob)
		if err != nil {
			t.Fatalf("decrypt failed: %v", err)
		}
		if got != plaintext {
			t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
		}
	}
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.EncryptString("same plaintext")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	b, err := c.EncryptString("same plaintext")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two encryptions of the same plaintext produced identical blobs")
	}
}

func TestAnyBitFlipFailsDecryption(t *testing.T) {
	c := newTestCipher(t)

	blob, err := c.Encrypt([]byte("totp shared secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	for i := range blob {
		for bit := 0; bit < 8; bit++ {
			mutated := bytes.Clone(blob)
			mutated[i] ^= 1 << bit
			if _, err := c.Decrypt(mutated); !errors.Is(err, ErrDecryptionFailed) {
				t.Fatalf("flip byte %d bit %d: expected ErrDecryptionFailed, got %v", i, bit, err)
			}
		}
	}
}

func TestWrongKeyFailsDecryption(t *testing.T) {
	a := newTestCipher(t)
	b := newTestCipher(t)

	blob, err := a.Encrypt([]byte("value"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if _, err := b.Decrypt(blob); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestTruncatedBlobFailsDecryption(t *testing.T) {
	c := newTestCipher(t)

	blob, err := c.Encrypt([]byte("value"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	for _, n := range []int{0, 1, nonceSize, nonceSize + tagSize - 1} {
		if _, err := c.Decrypt(blob[:n]); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("len %d: expected ErrDecryptionFailed, got %v", n, err)
		}
	}
}

func TestParseKeyEncodings(t *testing.T) {
	raw := testKey(t)

	cases := []struct {
		name string
		in   []byte
	}{
		{"raw", raw},
		{"hex", []byte(hex.EncodeToString(raw))},
		{"base64", []byte(base64.StdEncoding.EncodeToString(raw))},
	}
	for _, tc := range cases {
		got, err := ParseKey(tc.in)
		if err != nil {
			t.Fatalf("%s: ParseKey failed: %v", tc.name, err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatalf("%s: key mismatch", tc.name)
		}
	}
}

func TestParseKeyRejectsShortKeys(t *testing.T) {
	for _, in := range [][]byte{nil, []byte("short"), make([]byte, 16), []byte("zzzz")} {
		if _, err := ParseKey(in); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey for %d bytes, got %v", len(in), err)
		}
	}

	// Right length, not valid hex.
	bad := bytes.Repeat([]byte("!"), 64)
	if _, err := ParseKey(bad); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for malformed hex, got %v", err)
	}
}

func TestNewRejectsMalformedKey(t *testing.T) {
	if _, err := New([]byte("not-a-key")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestDecryptOrPlaintextLegacyPassThrough(t *testing.T) {
	c := newTestCipher(t)

	legacy := []byte("stored before encryption was added")
	if got := c.DecryptOrPlaintext(legacy); !bytes.Equal(got, legacy) {
		t.Fatalf("legacy value mangled: got %q", got)
	}

	blob, err := c.Encrypt([]byte("encrypted value"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if got := c.DecryptOrPlaintext(blob); string(got) != "encrypted value" {
		t.Fatalf("expected decryption, got %q", got)
	}
}
