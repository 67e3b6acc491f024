package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenMismatch    = errors.New("CSRF token mismatch")
	ErrTokenMissing     = errors.New("CSRF token missing")
	ErrTokenExpired     = errors.New("CSRF token expired")
	ErrSecureKeyMissing = errors.New("CSRF secure key required for stateless mode")
)

// DefaultTokenLength is the default nonce length for CSRF tokens
const DefaultTokenLength = 32

// Signer issues and verifies stateless tokens bound to a session key.
// Token layout: base64url("<unix>:<nonce hex>:<session>:<hmac hex>").
type Signer struct {
	SecureKey   []byte
	TokenLength int
	Expiration  time.Duration
	Now         func() time.Time
}

// NewSigner returns a signer. The key must be at least 32 bytes.
func NewSigner(key []byte, expiration time.Duration) (*Signer, error) {
	if len(key) == 0 {
		return nil, ErrSecureKeyMissing
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("csrf: secure key must be at least 32 bytes, got %d", len(key))
	}
	return &Signer{
		SecureKey:   key,
		TokenLength: DefaultTokenLength,
		Expiration:  expiration,
		Now:         time.Now,
	}, nil
}

// Issue creates a token for sessionKey.
func (s *Signer) Issue(sessionKey string) (string, error) {
	if len(s.SecureKey) == 0 {
		return "", ErrSecureKeyMissing
	}

	length := s.TokenLength
	if length <= 0 {
		length = DefaultTokenLength
	}
	nonce := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	payload := fmt.Sprintf("%d:%s:%s", s.now().UTC().Unix(), hex.EncodeToString(nonce), sessionKey)
	token := fmt.Sprintf("%s:%s", payload, hex.EncodeToString(s.sign(payload)))
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

// Verify checks the signature, the session binding and the expiration.
func (s *Signer) Verify(token, sessionKey string) error {
	if len(s.SecureKey) == 0 {
		return ErrSecureKeyMissing
	}
	if token == "" {
		return ErrTokenMissing
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		return ErrTokenMismatch
	}

	timestampStr, nonceHex, sessionFromToken, signatureHex := parts[0], parts[1], parts[2], parts[3]

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}

	if _, err := hex.DecodeString(nonceHex); err != nil {
		return ErrTokenMismatch
	}

	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrTokenMismatch
	}

	if !hmac.Equal(signature, s.sign(strings.Join(parts[:3], ":"))) {
		return ErrTokenMismatch
	}

	if subtle.ConstantTimeCompare([]byte(sessionFromToken), []byte(sessionKey)) != 1 {
		return ErrTokenMismatch
	}

	if s.Expiration > 0 {
		expiresAt := time.Unix(timestamp, 0).Add(s.Expiration)
		if s.now().UTC().After(expiresAt) {
			return ErrTokenExpired
		}
	}

	return nil
}

func (s *Signer) sign(payload string) []byte {
	mac := hmac.New(sha256.New, s.SecureKey)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
