package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/middleware/csrf"
	"github.com/goliatone/go-auth-client/middleware/jwtware"
)

const (
	// DefaultTimeout bounds every request; expiry is a network failure.
	DefaultTimeout = 10 * time.Second

	// HeaderRequestID carries a per request identifier.
	HeaderRequestID = "X-Request-ID"

	maxBodySize = 1 << 20

	maxMessageRunes = 200
)

// Interceptor wraps the outbound transport.
type Interceptor func(http.RoundTripper) http.RoundTripper

// RevocationHandler is notified after the server rejected token. The
// stored copy has already been removed if it was still token.
type RevocationHandler func(ctx context.Context, token string, err error)

// Client sends requests to the church API. Every request carries the
// stored bearer token and every failed response is classified before it
// reaches the caller.
type Client struct {
	baseURL    string
	creds      authclient.CredentialStore
	classifier *authclient.Classifier
	logger     authclient.Logger

	timeout      time.Duration
	base         http.RoundTripper
	authScheme   string
	authHeader   string
	csrfHeader   string
	limiter      *rate.Limiter
	interceptors []Interceptor
	httpClient   *http.Client

	mu         sync.RWMutex
	revocation []RevocationHandler
	revokeMu   sync.Mutex
}

// sentToken holds the bearer token attached to one request.
type sentToken struct {
	value string
}

type sentTokenKey struct{}

var _ authclient.Backend = &Client{}

// Option configures a Client
type Option func(*Client)

// WithTransport sets the innermost transport (http.DefaultTransport by default).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.base = rt
		}
	}
}

// WithTimeout sets the per request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClassifier replaces the default failure classifier.
func WithClassifier(cl *authclient.Classifier) Option {
	return func(c *Client) {
		if cl != nil {
			c.classifier = cl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger authclient.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAuthScheme sets the scheme and header used for the bearer token.
func WithAuthScheme(scheme, header string) Option {
	return func(c *Client) {
		if scheme != "" {
			c.authScheme = scheme
		}
		if header != "" {
			c.authHeader = header
		}
	}
}

// WithCSRFHeader sets the anti-forgery header name.
func WithCSRFHeader(header string) Option {
	return func(c *Client) {
		if header != "" {
			c.csrfHeader = header
		}
	}
}

// WithRateLimit paces outbound requests. A limit <= 0 disables pacing.
func WithRateLimit(limit float64, burst int) Option {
	return func(c *Client) {
		if limit <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// WithInterceptors appends interceptors that run closest to the transport.
func WithInterceptors(in ...Interceptor) Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, in...)
	}
}

// OnRevocation registers a handler at construction time.
func OnRevocation(fn RevocationHandler) Option {
	return func(c *Client) {
		c.OnRevocation(fn)
	}
}

// New returns a client for baseURL reading tokens from creds.
func New(baseURL string, creds authclient.CredentialStore, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		creds:      creds,
		classifier: authclient.DefaultClassifier(),
		logger:     authclient.DefaultLogger(),
		timeout:    DefaultTimeout,
		base:       http.DefaultTransport,
		authScheme: "Bearer",
		authHeader: "Authorization",
		csrfHeader: csrf.DefaultHeaderName,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.httpClient = &http.Client{
		Timeout:   c.timeout,
		Transport: c.chain(),
	}
	return c
}

// NewFromConfig builds a client from configuration; opts run last.
func NewFromConfig(cfg authclient.Config, creds authclient.CredentialStore, opts ...Option) *Client {
	base := []Option{
		WithTimeout(cfg.GetRequestTimeout()),
		WithAuthScheme(cfg.GetAuthScheme(), cfg.GetAuthHeader()),
		WithCSRFHeader(cfg.GetCSRFHeader()),
		WithClassifier(authclient.NewClassifier(cfg.GetClassifierRules())),
		WithRateLimit(cfg.GetRateLimit(), cfg.GetRateBurst()),
	}
	return New(cfg.GetBaseURL(), creds, append(base, opts...)...)
}

// OnRevocation registers fn to run after a dead credential was removed.
func (c *Client) OnRevocation(fn RevocationHandler) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revocation = append(c.revocation, fn)
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// chain builds requestid -> rate limit -> bearer -> csrf -> custom -> base.
func (c *Client) chain() http.RoundTripper {
	var layers []Interceptor
	layers = append(layers, requestIDInterceptor)
	if c.limiter != nil {
		layers = append(layers, rateLimitInterceptor(c.limiter))
	}
	layers = append(layers,
		jwtware.New(jwtware.Config{
			TokenSource: jwtware.TokenSourceFunc(c.readToken),
			TokenKey:    authclient.KeyAuthToken,
			Header:      c.authHeader,
			AuthScheme:  c.authScheme,
			ValidationListeners: []jwtware.ValidationListener{
				c.warnExpired,
			},
			ErrorHandler: func(req *http.Request, err error) {
				if !authclient.IsCredentialNotFound(err) {
					c.logger.Warn("token read failed, sending %s %s without token: %v", req.Method, req.URL.Path, err)
				}
			},
		}),
		csrf.New(csrf.Config{
			Storage:    c.creds,
			StorageKey: authclient.KeyCSRFToken,
			HeaderName: c.csrfHeader,
			ErrorHandler: func(req *http.Request, err error) {
				if !authclient.IsCredentialNotFound(err) {
					c.logger.Warn("csrf token storage failed for %s %s: %v", req.Method, req.URL.Path, err)
				}
			},
		}),
	)
	layers = append(layers, c.interceptors...)

	rt := c.base
	for i := len(layers) - 1; i >= 0; i-- {
		rt = layers[i](rt)
	}
	return rt
}

type request struct {
	method string
	path   string
	body   any
	// login failures must never remove a stored credential
	noRevoke bool
}

// do sends the request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	var reqBody io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to encode request body")
		}
		reqBody = bytes.NewReader(data)
	}

	sent := &sentToken{}
	req, err := http.NewRequestWithContext(context.WithValue(ctx, sentTokenKey{}, sent), r.method, c.baseURL+r.path, reqBody)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("%s %s failed after %s: %v", r.method, r.path, time.Since(start), err)
		return nil, authclient.NewNetworkError(err).
			WithMetadata(map[string]any{"method": r.method, "path": r.path})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, authclient.NewNetworkError(err).
			WithMetadata(map[string]any{"method": r.method, "path": r.path})
	}

	c.logger.Debug("%s %s -> %d (%s)", r.method, r.path, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return body, nil
	}

	return nil, c.fail(ctx, r, sent.value, resp.StatusCode, body)
}

// readToken feeds the bearer interceptor and remembers the token it handed
// out on the request context.
func (c *Client) readToken(ctx context.Context, key string) (string, error) {
	token, err := c.creds.Get(ctx, key)
	if err != nil {
		return token, err
	}
	if sent, ok := ctx.Value(sentTokenKey{}).(*sentToken); ok {
		sent.value = strings.TrimSpace(token)
	}
	return token, nil
}

// warnExpired only logs. The server decides whether the token is dead.
func (c *Client) warnExpired(req *http.Request, claims *jwt.RegisteredClaims) error {
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		c.logger.Warn("%s %s: sending token for %q that expired at %s",
			req.Method, req.URL.Path, claims.Subject, claims.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func (c *Client) fail(ctx context.Context, r request, token string, status int, body []byte) error {
	failure := ParseFailure(status, body)
	kind := c.classifier.Classify(failure)
	err := c.classifier.Error(kind, failure)

	if !kind.RevokesCredential() || r.noRevoke {
		if kind != authclient.FailureRequest {
			c.logger.Info("%s %s: %s (%d) %s", r.method, r.path, kind, status, failure.Message)
		}
		return err
	}

	c.logger.Warn("%s %s: credential rejected (%d) %s", r.method, r.path, status, failure.Message)
	if token == "" {
		// nothing was sent, so nothing stored can be dead
		return err
	}
	c.removeIfCurrent(ctx, token)

	c.mu.RLock()
	handlers := append([]RevocationHandler(nil), c.revocation...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, token, err)
	}
	return err
}

// removeIfCurrent removes the stored token only while it is still token. A
// late rejection must not remove a token stored by a newer login.
func (c *Client) removeIfCurrent(ctx context.Context, token string) {
	c.revokeMu.Lock()
	defer c.revokeMu.Unlock()

	current, err := c.creds.Get(ctx, authclient.KeyAuthToken)
	if err != nil {
		if !authclient.IsCredentialNotFound(err) {
			c.logger.Error("failed to read token before removal: %v", err)
		}
		return
	}
	if strings.TrimSpace(current) != token {
		c.logger.Info("rejected token was already replaced, keeping the stored one")
		return
	}
	if err := c.creds.Remove(ctx, authclient.KeyAuthToken); err != nil && !authclient.IsCredentialNotFound(err) {
		c.logger.Error("failed to remove rejected token: %v", err)
	}
}

// ParseFailure reads the error fields of a failed response. It accepts
// {message|error|msg, code} at the top level or nested under "error".
func ParseFailure(status int, body []byte) authclient.ResponseFailure {
	failure := authclient.ResponseFailure{Status: status}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		failure.Message = truncateRunes(strings.TrimSpace(string(body)), maxMessageRunes)
		return failure
	}

	if nested, ok := raw["error"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(nested, &inner); err == nil {
			failure.Message = firstString(inner, "message", "msg", "error")
			failure.Code = codeString(inner["code"])
		}
	}

	if failure.Message == "" {
		failure.Message = firstString(raw, "message", "error", "msg")
	}
	if failure.Code == "" {
		failure.Code = codeString(raw["code"])
	}
	return failure
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func firstString(m map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func codeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func requestIDInterceptor(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get(HeaderRequestID) != "" {
			return next.RoundTrip(req)
		}
		out := req.Clone(req.Context())
		out.Header.Set(HeaderRequestID, uuid.NewString())
		return next.RoundTrip(out)
	})
}

func rateLimitInterceptor(limiter *rate.Limiter) Interceptor {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if err := limiter.Wait(req.Context()); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
			return next.RoundTrip(req)
		})
	}
}
