package transfer

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// DownloadTokenTTL is how long a download link stays valid
const DownloadTokenTTL = 5 * time.Minute

type downloadClaims struct {
	ExportID string `json:"export_id"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 download tokens bound to one export
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. now may be nil to use the wall clock.
func NewTokenIssuer(secret string, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), now: now}
}

// Issue returns a signed token for exportID and its expiry
func (t *TokenIssuer) Issue(exportID string) (string, time.Time, error) {
	expiresAt := t.now().Add(DownloadTokenTTL)
	claims := downloadClaims{
		ExportID: exportID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign download token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify returns the export id bound to token. An expired token yields
// ErrTokenExpired, every other failure ErrNotFound.
func (t *TokenIssuer) Verify(token string) (string, error) {
	var claims downloadClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", domain.ErrTokenExpired
		}
		return "", fmt.Errorf("%w: invalid download token: %v", domain.ErrNotFound, err)
	}

	if claims.ExportID == "" {
		return "", fmt.Errorf("%w: download token has no export id", domain.ErrNotFound)
	}

	return claims.ExportID, nil
}
