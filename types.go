package authclient

import (
	"context"
	"fmt"
	"time"
)

// Persisted credential keys.
const (
	KeyAuthToken      = "auth_token"
	KeyCSRFToken      = "csrf_token"
	KeySelectedChurch = "selected_church_id"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// CredentialStore is durable key/value persistence for tokens and the
// selected church. Get returns ErrCredentialNotFound for missing keys.
// Implementations may fail with a storage error; callers treat any read
// failure as "value absent". No retries are performed here.
type CredentialStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// SessionBackend holds the identity endpoints used by SessionMachine.
type SessionBackend interface {
	Login(ctx context.Context, creds Credentials) (*LoginResponse, error)
	Me(ctx context.Context) (Payload, error)
	UpdateProfile(ctx context.Context, update ProfileUpdate) (Payload, error)
}

// PasswordBackend updates the account secret.
type PasswordBackend interface {
	UpdatePassword(ctx context.Context, change PasswordChange) error
}

// RoleBackend holds the role endpoints used by RoleService.
type RoleBackend interface {
	AvailableRoles(ctx context.Context) ([]Role, error)
	ChangeRole(ctx context.Context, role Role) error
}

// ChurchBackend lists the churches the user may scope to.
type ChurchBackend interface {
	Churches(ctx context.Context) ([]Church, error)
}

// Backend is the full surface consumed by this package.
type Backend interface {
	SessionBackend
	PasswordBackend
	RoleBackend
	ChurchBackend
}

// Config holds client options
type Config interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetAuthScheme() string
	GetAuthHeader() string
	GetCSRFHeader() string
	GetClassifierRules() ClassifierRules
	GetRoleSettleDelay() time.Duration
	GetPhoneRegion() string
	GetRateLimit() float64
	GetRateBurst() int
	GetStorageDSN() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHCLIENT "+newline(format), args...)
}

// DefaultLogger returns the printf logger used when none is configured.
func DefaultLogger() Logger {
	return defLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
