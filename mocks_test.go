package authclient_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-auth-client"
)

// MockBackend implements authclient.Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Login(ctx context.Context, creds authclient.Credentials) (*authclient.LoginResponse, error) {
	args := m.Called(ctx, creds)
	resp, _ := args.Get(0).(*authclient.LoginResponse)
	return resp, args.Error(1)
}

func (m *MockBackend) Me(ctx context.Context) (authclient.Payload, error) {
	args := m.Called(ctx)
	p, _ := args.Get(0).(authclient.Payload)
	return p, args.Error(1)
}

func (m *MockBackend) UpdateProfile(ctx context.Context, update authclient.ProfileUpdate) (authclient.Payload, error) {
	args := m.Called(ctx, update)
	p, _ := args.Get(0).(authclient.Payload)
	return p, args.Error(1)
}

func (m *MockBackend) UpdatePassword(ctx context.Context, change authclient.PasswordChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *MockBackend) AvailableRoles(ctx context.Context) ([]authclient.Role, error) {
	args := m.Called(ctx)
	roles, _ := args.Get(0).([]authclient.Role)
	return roles, args.Error(1)
}

func (m *MockBackend) ChangeRole(ctx context.Context, role authclient.Role) error {
	args := m.Called(ctx, role)
	return args.Error(0)
}

func (m *MockBackend) Churches(ctx context.Context) ([]authclient.Church, error) {
	args := m.Called(ctx)
	churches, _ := args.Get(0).([]authclient.Church)
	return churches, args.Error(1)
}

// MockCredentialStore implements authclient.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockCredentialStore) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockCredentialStore) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCredentialStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// recordingSink collects activity events.
type recordingSink struct {
	mu     sync.Mutex
	events []authclient.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event authclient.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []authclient.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]authclient.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *recordingSink) last() authclient.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return authclient.ActivityEvent{}
	}
	return s.events[len(s.events)-1]
}

// payload builds a raw user payload from a JSON object literal.
func payload(t *testing.T, raw string) authclient.Payload {
	t.Helper()
	var p authclient.Payload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

func signedToken(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "test",
		IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func invalidCredentialErr(message string) error {
	return authclient.DefaultClassifier().Error(authclient.FailureInvalidCredential, authclient.ResponseFailure{
		Status:  401,
		Message: message,
	})
}

func privilegeErr(message string) error {
	return authclient.DefaultClassifier().Error(authclient.FailurePrivilege, authclient.ResponseFailure{
		Status:  401,
		Message: message,
	})
}

func networkErr() error {
	return authclient.NewNetworkError(context.DeadlineExceeded)
}

func newMachine(backend *MockBackend, creds authclient.CredentialStore) (*authclient.SessionMachine, *recordingSink) {
	sink := &recordingSink{}
	m := authclient.NewSessionMachine(backend, creds).
		WithLogger(authclient.NopLogger()).
		WithActivitySink(sink)
	return m, sink
}

func storeWithToken(t *testing.T, token string) *authclient.MemoryCredentialStore {
	t.Helper()
	creds := authclient.NewMemoryCredentialStore()
	if token != "" {
		require.NoError(t, creds.Set(context.Background(), authclient.KeyAuthToken, token))
	}
	return creds
}

func storedToken(t *testing.T, creds authclient.CredentialStore) (string, bool) {
	t.Helper()
	v, err := creds.Get(context.Background(), authclient.KeyAuthToken)
	if err != nil {
		return "", false
	}
	return v, true
}
