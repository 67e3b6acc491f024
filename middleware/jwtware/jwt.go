package jwtware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	defaultHeader            = "Authorization"
	defaultTokenKey          = "auth_token"
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
)

// TokenSource reads the bearer token for an outgoing request. It mirrors
// the Get method of the credential store without importing it.
type TokenSource interface {
	Get(ctx context.Context, key string) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context, key string) (string, error)

func (f TokenSourceFunc) Get(ctx context.Context, key string) (string, error) {
	return f(ctx, key)
}

// ValidationListener observes the unverified claims of the token about to
// be sent. Returning an error aborts the request.
type ValidationListener func(req *http.Request, claims *jwt.RegisteredClaims) error

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type Config struct {
	// Filter skips the middleware when it returns true.
	Filter func(*http.Request) bool
	// TokenSource is required.
	TokenSource TokenSource
	// TokenKey is the key passed to TokenSource.
	TokenKey string
	// Header receives the token. Defaults to Authorization.
	Header string
	// AuthScheme prefixes the token. Defaults to Bearer.
	AuthScheme string
	// ErrorHandler is called when the token cannot be read. The request is
	// still sent, without a token.
	ErrorHandler func(req *http.Request, err error)

	// ValidationListeners run when the token parses as a JWT. Opaque tokens
	// skip them.
	ValidationListeners []ValidationListener
}

// New returns an outbound middleware that attaches the bearer token read
// from the TokenSource to every request. Requests are sent without the
// header when no token is stored.
func New(config ...Config) func(http.RoundTripper) http.RoundTripper {
	cfg := GetDefaultConfig(config...)
	return func(next http.RoundTripper) http.RoundTripper {
		if next == nil {
			next = http.DefaultTransport
		}
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if cfg.Filter != nil && cfg.Filter(req) {
				return next.RoundTrip(req)
			}

			token, err := cfg.TokenSource.Get(req.Context(), cfg.TokenKey)
			token = strings.TrimSpace(token)
			if err != nil || token == "" {
				if err != nil && cfg.ErrorHandler != nil {
					cfg.ErrorHandler(req, err)
				}
				return next.RoundTrip(req)
			}

			if err := cfg.runValidationListeners(req, token); err != nil {
				return nil, err
			}

			out := req.Clone(req.Context())
			out.Header.Set(cfg.Header, cfg.AuthScheme+" "+token)
			return next.RoundTrip(out)
		})
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenSource == nil {
		panic("AUTHCLIENT: JWT middleware configuration: TokenSource is required.")
	}

	if cfg.TokenKey == "" {
		cfg.TokenKey = defaultTokenKey
	}

	if cfg.Header == "" {
		cfg.Header = defaultHeader
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

func (cfg *Config) runValidationListeners(req *http.Request, token string) error {
	if len(cfg.ValidationListeners) == 0 {
		return nil
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}

	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(req, claims); err != nil {
			return err
		}
	}
	return nil
}

// ExtractToken reads a token from an Authorization style header value.
func ExtractToken(value, authScheme string) (string, error) {
	authScheme = strings.TrimSpace(authScheme)
	l := len(authScheme)
	if l == 0 {
		return "", ErrJWTMissingOrMalformed
	}
	if len(value) > l+1 && strings.EqualFold(value[:l], authScheme) {
		if token := strings.TrimSpace(value[l:]); token != "" {
			return token, nil
		}
	}
	return "", ErrJWTMissingOrMalformed
}
