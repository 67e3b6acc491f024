package jwtware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-auth-client/middleware/jwtware"
)

// By default we set an expiration time 1 hour from now
func generateToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	if claims["exp"] == nil {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func staticSource(token string, err error) jwtware.TokenSource {
	return jwtware.TokenSourceFunc(func(ctx context.Context, key string) (string, error) {
		return token, err
	})
}

// capture records the last request that reached the transport.
type capture struct {
	req *http.Request
}

func (c *capture) RoundTrip(req *http.Request) (*http.Response, error) {
	c.req = req
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusOK)
	return rec.Result(), nil
}

//--------------------------------------------------------------------------------------
// Tests
//--------------------------------------------------------------------------------------

func TestJWTWare_AttachesBearerToken(t *testing.T) {
	token := generateToken(t, jwt.MapClaims{"sub": "u1"})
	base := &capture{}
	rt := jwtware.New(jwtware.Config{TokenSource: staticSource(token, nil)})(base)

	req := httptest.NewRequest(http.MethodGet, "http://api.test/auth/me", nil)
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)

	require.NotNil(t, base.req)
	assert.Equal(t, "Bearer "+token, base.req.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get("Authorization"), "original request must not be mutated")
}

func TestJWTWare_SkipsWhenNoToken(t *testing.T) {
	base := &capture{}
	var handled error
	rt := jwtware.New(jwtware.Config{
		TokenSource: staticSource("", errors.New("not found")),
		ErrorHandler: func(req *http.Request, err error) {
			handled = err
		},
	})(base)

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://api.test/churches", nil))
	require.NoError(t, err)
	assert.Empty(t, base.req.Header.Get("Authorization"))
	assert.EqualError(t, handled, "not found")
}

func TestJWTWare_CustomHeaderAndScheme(t *testing.T) {
	base := &capture{}
	rt := jwtware.New(jwtware.Config{
		TokenSource: staticSource("opaque-token", nil),
		Header:      "X-Auth",
		AuthScheme:  "Token",
	})(base)

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://api.test/", nil))
	require.NoError(t, err)
	assert.Equal(t, "Token opaque-token", base.req.Header.Get("X-Auth"))
}

func TestJWTWare_FilterFunction(t *testing.T) {
	base := &capture{}
	rt := jwtware.New(jwtware.Config{
		TokenSource: staticSource("t1", nil),
		Filter: func(req *http.Request) bool {
			return req.URL.Path == "/auth/login"
		},
	})(base)

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodPost, "http://api.test/auth/login", nil))
	require.NoError(t, err)
	assert.Empty(t, base.req.Header.Get("Authorization"))
}

func TestJWTWare_ValidationListeners(t *testing.T) {
	token := generateToken(t, jwt.MapClaims{"sub": "u9", "iss": "church-api"})

	var seen *jwt.RegisteredClaims
	base := &capture{}
	rt := jwtware.New(jwtware.Config{
		TokenSource: staticSource(token, nil),
		ValidationListeners: []jwtware.ValidationListener{
			func(req *http.Request, claims *jwt.RegisteredClaims) error {
				seen = claims
				return nil
			},
		},
	})(base)

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://api.test/", nil))
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, "u9", seen.Subject)
	assert.Equal(t, "church-api", seen.Issuer)

	boom := errors.New("abort")
	rt = jwtware.New(jwtware.Config{
		TokenSource: staticSource(token, nil),
		ValidationListeners: []jwtware.ValidationListener{
			func(*http.Request, *jwt.RegisteredClaims) error { return boom },
		},
	})(&capture{})
	_, err = rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://api.test/", nil))
	assert.ErrorIs(t, err, boom)
}

func TestJWTWare_OpaqueTokenSkipsListeners(t *testing.T) {
	called := false
	base := &capture{}
	rt := jwtware.New(jwtware.Config{
		TokenSource: staticSource("not-a-jwt", nil),
		ValidationListeners: []jwtware.ValidationListener{
			func(*http.Request, *jwt.RegisteredClaims) error {
				called = true
				return nil
			},
		},
	})(base)

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://api.test/", nil))
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, "Bearer not-a-jwt", base.req.Header.Get("Authorization"))
}

func TestGetDefaultConfig(t *testing.T) {
	assert.Panics(t, func() { jwtware.GetDefaultConfig() })

	cfg := jwtware.GetDefaultConfig(jwtware.Config{TokenSource: staticSource("", nil)})
	assert.Equal(t, "auth_token", cfg.TokenKey)
	assert.Equal(t, "Authorization", cfg.Header)
	assert.Equal(t, "Bearer", cfg.AuthScheme)
}

func TestExtractToken(t *testing.T) {
	token, err := jwtware.ExtractToken("Bearer abc.def", "Bearer")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	token, err = jwtware.ExtractToken("bearer xyz", "Bearer")
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)

	_, err = jwtware.ExtractToken("", "Bearer")
	assert.ErrorIs(t, err, jwtware.ErrJWTMissingOrMalformed)

	_, err = jwtware.ExtractToken("Basic abc", "Bearer")
	assert.ErrorIs(t, err, jwtware.ErrJWTMissingOrMalformed)

	_, err = jwtware.ExtractToken("Bearer abc", "")
	assert.ErrorIs(t, err, jwtware.ErrJWTMissingOrMalformed)
}
