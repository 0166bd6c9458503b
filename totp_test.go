package vaultgate

import (
	"strings"
	"testing"
	"time"
)

// RFC 6238 appendix B test secret (SHA1 rows).
var rfcSecret = []byte("12345678901234567890")

func rfcManager() *totpManager {
	return newTOTPManager(TOTPConfig{Issuer: "vaultgate", Digits: 6, Period: 30, Skew: 1})
}

func TestHOTPCodeMatchesRFCVectors(t *testing.T) {
	// Appendix B vectors truncated to 6 digits.
	cases := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}
	for _, tc := range cases {
		counter := tc.unix / 30
		if got := hotpCode(rfcSecret, counter, 6); got != tc.code {
			t.Fatalf("T=%d: got %s want %s", tc.unix, got, tc.code)
		}
	}
}

func TestVerifyCodeAcceptsAdjacentStep(t *testing.T) {
	m := rfcManager()
	at := time.Unix(1111111109, 0)
	code := hotpCode(rfcSecret, at.Unix()/30, 6)

	for _, offset := range []time.Duration{0, 30 * time.Second, -30 * time.Second} {
		if !m.VerifyCode(rfcSecret, code, at.Add(offset)) {
			t.Fatalf("expected code valid at offset %v", offset)
		}
	}
	for _, offset := range []time.Duration{90 * time.Second, -90 * time.Second} {
		if m.VerifyCode(rfcSecret, code, at.Add(offset)) {
			t.Fatalf("expected code invalid at offset %v", offset)
		}
	}
}

func TestVerifyCodeRejectsMalformedInput(t *testing.T) {
	m := rfcManager()
	now := time.Unix(1111111109, 0)

	for _, code := range []string{"", "12345", "1234567", "12a456", "  12 34"} {
		if m.VerifyCode(rfcSecret, code, now) {
			t.Fatalf("expected %q rejected", code)
		}
	}
	if m.VerifyCode(nil, "287082", now) {
		t.Fatal("expected empty secret rejected")
	}
}

func TestVerifyCodeTrimsWhitespace(t *testing.T) {
	m := rfcManager()
	at := time.Unix(59, 0)
	if !m.VerifyCode(rfcSecret, " 287082 ", at) {
		t.Fatal("expected surrounding whitespace tolerated")
	}
}

func TestGenerateSecretIsFreshAndDecodable(t *testing.T) {
	m := rfcManager()

	raw, encoded, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if len(raw) != totpSecretBytes {
		t.Fatalf("unexpected secret size %d", len(raw))
	}
	decoded, err := b32.DecodeString(encoded)
	if err != nil {
		t.Fatalf("secret not base32: %v", err)
	}
	if string(decoded) != string(raw) {
		t.Fatal("encoded secret does not round-trip")
	}

	_, second, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if encoded == second {
		t.Fatal("two generated secrets are identical")
	}
}

func TestProvisionURIShape(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Issuer: "Shopworks", Digits: 6, Period: 30, Skew: 1})
	uri := m.ProvisionURI("JBSWY3DPEHPK3PXP", "alice@example.com")

	for _, want := range []string{
		"otpauth://totp/Shopworks:alice@example.com?",
		"secret=JBSWY3DPEHPK3PXP",
		"issuer=Shopworks",
		"digits=6",
		"period=30",
		"algorithm=SHA1",
	} {
		if !strings.Contains(uri, want) {
			t.Fatalf("uri %q missing %q", uri, want)
		}
	}
}
