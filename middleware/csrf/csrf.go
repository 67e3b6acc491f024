package csrf

import (
	"context"
	"net/http"
	"slices"
	"strings"
)

// DefaultStorageKey is the credential key holding the anti-forgery token
const DefaultStorageKey = "csrf_token"

// DefaultHeaderName is the default header name for CSRF tokens
const DefaultHeaderName = "X-CSRF-Token"

// Config defines the configuration for the outbound CSRF middleware
type Config struct {
	// Skip defines a function to skip middleware
	Skip func(*http.Request) bool

	// Storage persists the last token issued by the server. Required.
	Storage Storage

	// StorageKey is the key used with Storage
	StorageKey string

	// HeaderName is read from responses and written on requests
	HeaderName string

	// SafeMethods defines HTTP methods that are sent without a token
	SafeMethods []string

	// ErrorHandler receives storage failures. They never fail the request.
	ErrorHandler func(req *http.Request, err error)
}

// Storage is the subset of the credential store used by the middleware
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// New returns an outbound middleware that replays the stored CSRF token
// on unsafe requests and stores any token the server sends back.
func New(config ...Config) func(http.RoundTripper) http.RoundTripper {
	cfg := configDefault(config...)
	return func(next http.RoundTripper) http.RoundTripper {
		if next == nil {
			next = http.DefaultTransport
		}
		return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if cfg.Skip != nil && cfg.Skip(req) {
				return next.RoundTrip(req)
			}

			out := req
			method := strings.ToUpper(req.Method)
			if !slices.Contains(cfg.SafeMethods, method) {
				token, err := cfg.Storage.Get(req.Context(), cfg.StorageKey)
				if err != nil {
					cfg.handleError(req, err)
				} else if token = strings.TrimSpace(token); token != "" {
					out = req.Clone(req.Context())
					out.Header.Set(cfg.HeaderName, token)
				}
			}

			resp, err := next.RoundTrip(out)
			if err != nil || resp == nil {
				return resp, err
			}

			if issued := strings.TrimSpace(resp.Header.Get(cfg.HeaderName)); issued != "" {
				if err := cfg.Storage.Set(req.Context(), cfg.StorageKey, issued); err != nil {
					cfg.handleError(req, err)
				}
			}
			return resp, nil
		})
	}
}

func (cfg Config) handleError(req *http.Request, err error) {
	if cfg.ErrorHandler != nil {
		cfg.ErrorHandler(req, err)
	}
}

// configDefault returns a default config
func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Storage == nil {
		panic("AUTHCLIENT: CSRF middleware configuration: Storage is required.")
	}

	if cfg.StorageKey == "" {
		cfg.StorageKey = DefaultStorageKey
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}

	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}

	return cfg
}
