package vaultgate

import (
	"github.com/golang-jwt/jwt/v5"
)

// IssueMFAMarker mints the MFA-completion marker set after a successful
// verification: an HS256 JWT carrying the identity and the completion time,
// bounded by the configured multi-day TTL. The HTTP layer stores it in an
// HTTP-only, strict-same-site cookie.
func (e *Engine) IssueMFAMarker(identityID string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	now := e.now()
	claims := jwt.RegisteredClaims{
		Subject:   identityID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(e.config.Signing.MFAMarkerTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.config.Signing.Secret)
}

// VerifyMFAMarker validates a presented marker and returns the identity it
// was minted for. Any failure, whether forged, expired, or signed with the
// wrong algorithm, is the one generic ErrInvalidSignature.
func (e *Engine) VerifyMFAMarker(marker string) (identityID string, err error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(marker, claims, func(*jwt.Token) (any, error) {
		return e.config.Signing.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(e.now))
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidSignature
	}
	return claims.Subject, nil
}
