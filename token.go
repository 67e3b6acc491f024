package authclient

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenInfo is what can be read from a bearer token without verifying it.
// It is informational only: the server is the sole authority on validity.
type TokenInfo struct {
	Subject   string     `json:"subject,omitempty"`
	Issuer    string     `json:"issuer,omitempty"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token claims an expiry before now.
func (t *TokenInfo) Expired(now time.Time) bool {
	if t == nil || t.ExpiresAt == nil {
		return false
	}
	return now.After(*t.ExpiresAt)
}

// Remaining returns the time left before the claimed expiry.
func (t *TokenInfo) Remaining(now time.Time) (time.Duration, bool) {
	if t == nil || t.ExpiresAt == nil {
		return 0, false
	}
	return t.ExpiresAt.Sub(now), true
}

// InspectToken decodes JWT claims without checking the signature. Opaque
// tokens return an error and should simply be shown without details.
func InspectToken(raw string) (*TokenInfo, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, goerrors.New("empty token", goerrors.CategoryBadInput).
			WithTextCode(TextCodeMalformedPayload)
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "token is not a readable JWT").
			WithTextCode(TextCodeMalformedPayload)
	}

	info := &TokenInfo{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
	}
	if claims.IssuedAt != nil {
		t := claims.IssuedAt.Time
		info.IssuedAt = &t
	}
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		info.ExpiresAt = &t
	}
	return info, nil
}
