package vaultgate

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

type totpManager struct {
	issuer string
	digits int
	period int
	skew   int
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	return &totpManager{
		issuer: cfg.Issuer,
		digits: cfg.Digits,
		period: cfg.Period,
		skew:   cfg.Skew,
	}
}

// GenerateSecret returns a fresh random shared secret as raw bytes and as
// the base32 form carried in provisioning URIs.
func (m *totpManager) GenerateSecret() ([]byte, string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, b32.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth:// payload encoded into the setup QR.
func (m *totpManager) ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(m.issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", m.issuer)
	v.Set("period", strconv.Itoa(m.period))
	v.Set("digits", strconv.Itoa(m.digits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// VerifyCode checks a presented code against the secret at now, accepting
// codes up to skew steps either side. Comparison is constant-time per
// candidate step.
func (m *totpManager) VerifyCode(secret []byte, code string, now time.Time) bool {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.digits || !isNumeric(trimmed) || len(secret) == 0 {
		return false
	}

	baseCounter := now.Unix() / int64(m.period)
	for step := -m.skew; step <= m.skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotpCode(secret, counter, m.digits)), []byte(trimmed)) == 1 {
			return true
		}
	}
	return false
}

// hotpCode implements RFC 4226 dynamic truncation over HMAC-SHA1, the
// algorithm RFC 6238 layers its time steps on.
func hotpCode(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	code := strconv.FormatUint(uint64(truncated%mod), 10)
	for len(code) < digits {
		code = "0" + code
	}
	return code
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
