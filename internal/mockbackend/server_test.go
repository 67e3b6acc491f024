package mockbackend_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/internal/mockbackend"
	"github.com/goliatone/go-auth-client/middleware/csrf"
)

func newServer(t *testing.T, opts ...mockbackend.Option) (*mockbackend.Server, authclient.User) {
	t.Helper()
	s := mockbackend.New(opts...)
	user, err := s.AddAccount("Ana@Example.org", "secret123", authclient.User{
		Name:           "Ana",
		Role:           authclient.RoleMember,
		AvailableRoles: []authclient.Role{authclient.RoleMember, authclient.RoleLeader},
	})
	require.NoError(t, err)
	return s, user
}

func call(t *testing.T, s *mockbackend.Server, method, path, token string, body any, header ...string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func login(t *testing.T, s *mockbackend.Server) (string, *http.Response) {
	t.Helper()
	resp, body := call(t, s, http.MethodPost, "/auth/login", "", authclient.Credentials{Identifier: "ana@example.org", Secret: "secret123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token, resp
}

func TestAddAccountDefaults(t *testing.T) {
	s, user := newServer(t)
	assert.NotEmpty(t, user.ID, "ids are derived from the identifier")
	assert.Equal(t, "ana@example.org", user.Email)

	again, err := mockbackend.New().AddAccount("ana@example.org", "x", authclient.User{})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	stored, ok := s.User(user.ID)
	require.True(t, ok)
	assert.Equal(t, "Ana", stored.Name)
}

func TestLogin(t *testing.T) {
	s, user := newServer(t)

	token, _ := login(t, s)
	_, body := call(t, s, http.MethodGet, "/auth/me", token, nil)
	me, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, user.ID, me["id"])
	assert.NotNil(t, me["available_roles"])

	resp, body := call(t, s, http.MethodPost, "/auth/login", "", authclient.Credentials{Identifier: "ana@example.org", Secret: "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", body["message"])

	resp, _ = call(t, s, http.MethodPost, "/auth/login", "", authclient.Credentials{Identifier: "ana@example.org"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthenticateRejections(t *testing.T) {
	now := time.Now()
	s, user := newServer(t, mockbackend.WithClock(func() time.Time { return now }), mockbackend.WithTokenTTL(time.Minute))

	resp, body := call(t, s, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "NO_TOKEN", body["code"])

	_, body = call(t, s, http.MethodGet, "/auth/me", "garbage", nil)
	assert.Equal(t, "INVALID_TOKEN", body["code"])

	token, err := s.IssueToken(user.ID)
	require.NoError(t, err)

	resp, _ = call(t, s, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Revoke(token))
	_, body = call(t, s, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, "Invalid token", body["message"])

	fresh, err := s.IssueToken(user.ID)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, body = call(t, s, http.MethodGet, "/auth/me", fresh, nil)
	assert.Equal(t, "TOKEN_EXPIRED", body["code"])

	stranger, err := s.IssueToken("nobody")
	require.NoError(t, err)
	_, body = call(t, s, http.MethodGet, "/auth/me", stranger, nil)
	assert.Equal(t, "INVALID_TOKEN", body["code"])
}

func TestFailNext(t *testing.T) {
	s, _ := newServer(t)
	token, _ := login(t, s)

	s.FailNext(mockbackend.RouteMe, mockbackend.Failure{Status: 429, Message: "Too many requests", Code: "RATE"})
	s.FailNext(mockbackend.RouteMe, mockbackend.Failure{Status: 200, Body: map[string]any{"name": "no id"}})

	resp, body := call(t, s, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE", body["code"])

	resp, body = call(t, s, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no id", body["name"])

	resp, _ = call(t, s, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, s.Calls(mockbackend.RouteMe))
}

func TestTransportDropsConnection(t *testing.T) {
	s, _ := newServer(t)
	s.FailNext(mockbackend.RouteChurches, mockbackend.Failure{})

	rt := s.Transport()
	req := httptest.NewRequest(http.MethodGet, "http://church.test/churches", nil)

	_, err := rt.RoundTrip(req)
	assert.True(t, errors.Is(err, mockbackend.ErrConnectionDropped))

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://church.test/churches", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 2, s.Calls(mockbackend.RouteChurches))
}

func TestCSRF(t *testing.T) {
	signer, err := csrf.NewSigner([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)
	s, _ := newServer(t, mockbackend.WithCSRF(signer))

	token, resp := login(t, s)
	issued := resp.Header.Get(csrf.DefaultHeaderName)
	require.NotEmpty(t, issued)

	resp, body := call(t, s, http.MethodPut, "/users/profile", token, authclient.ProfileUpdate{Name: "Ana Maria"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "CSRF_INVALID", body["code"])

	resp, body = call(t, s, http.MethodPut, "/users/profile", token, authclient.ProfileUpdate{Name: "Ana Maria"}, csrf.DefaultHeaderName, issued)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	user, _ := body["user"].(map[string]any)
	assert.Equal(t, "Ana Maria", user["name"])
	assert.Nil(t, user["available_roles"], "profile responses omit role data")

	// safe methods skip the check
	resp, _ = call(t, s, http.MethodGet, "/churches", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	signer.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, body = call(t, s, http.MethodPut, "/users/profile", token, authclient.ProfileUpdate{Name: "Late"}, csrf.DefaultHeaderName, issued)
	assert.Equal(t, "CSRF_TOKEN_EXPIRED", body["code"])
}

func TestRoleEndpoints(t *testing.T) {
	s, user := newServer(t)
	token, _ := login(t, s)

	_, body := call(t, s, http.MethodGet, "/roles/available-roles", token, nil)
	assert.Equal(t, []any{"MEMBER", "LEADER"}, body["available_roles"])

	resp, body := call(t, s, http.MethodPost, "/roles/change-role", token, map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Role not allowed for this user", body["message"])

	resp, _ = call(t, s, http.MethodPost, "/roles/change-role", token, map[string]string{"role": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = call(t, s, http.MethodPost, "/roles/change-role", token, map[string]string{"role": "leader"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stored, _ := s.User(user.ID)
	assert.Equal(t, authclient.RoleLeader, stored.CurrentRole)
}

func TestUpdatePassword(t *testing.T) {
	s, _ := newServer(t)
	token, _ := login(t, s)

	resp, body := call(t, s, http.MethodPut, "/auth/updatepassword", token, authclient.PasswordChange{CurrentSecret: "wrong", NewSecret: "new-secret"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Current password is incorrect", body["message"])

	resp, _ = call(t, s, http.MethodPut, "/auth/updatepassword", token, authclient.PasswordChange{CurrentSecret: "secret123", NewSecret: "new-secret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = call(t, s, http.MethodPost, "/auth/login", "", authclient.Credentials{Identifier: "ana@example.org", Secret: "new-secret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChurches(t *testing.T) {
	s, _ := newServer(t, mockbackend.WithChurches(authclient.Church{ID: "c1", Name: "Central"}))
	token, _ := login(t, s)

	req := httptest.NewRequest(http.MethodGet, "/churches", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var list []authclient.Church
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, []authclient.Church{{ID: "c1", Name: "Central"}}, list)

	s.SetChurches()
	req = httptest.NewRequest(http.MethodGet, "/churches", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "[]", strings.TrimSpace(string(raw)))
}
