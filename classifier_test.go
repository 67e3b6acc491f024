package authclient_test

import (
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-auth-client"
)

func TestClassify(t *testing.T) {
	c := authclient.DefaultClassifier()

	tests := []struct {
		name    string
		failure authclient.ResponseFailure
		want    authclient.FailureKind
	}{
		{"no response", authclient.ResponseFailure{}, authclient.FailureNetwork},
		{"success", authclient.ResponseFailure{Status: 200}, authclient.FailureNone},
		{"rate limited", authclient.ResponseFailure{Status: 429, Message: "invalid token"}, authclient.FailureRateLimited},
		{"bad request", authclient.ResponseFailure{Status: 400, Message: "bad"}, authclient.FailureRequest},
		{"forbidden is not a 401", authclient.ResponseFailure{Status: 403, Message: "invalid token"}, authclient.FailureRequest},
		{"server error", authclient.ResponseFailure{Status: 500}, authclient.FailureRequest},

		{"invalid token", authclient.ResponseFailure{Status: 401, Message: "Invalid token"}, authclient.FailureInvalidCredential},
		{"jwt expired", authclient.ResponseFailure{Status: 401, Message: "jwt expired"}, authclient.FailureInvalidCredential},
		{"session expired message", authclient.ResponseFailure{Status: 401, Message: "Your session has expired"}, authclient.FailureInvalidCredential},
		{"csrf keyword", authclient.ResponseFailure{Status: 401, Message: "CSRF check failed"}, authclient.FailureInvalidCredential},
		{"session code", authclient.ResponseFailure{Status: 401, Code: "csrf_token_expired"}, authclient.FailureInvalidCredential},

		{"privilege", authclient.ResponseFailure{Status: 401, Message: "Not authorized to access this route"}, authclient.FailurePrivilege},
		{"church mismatch", authclient.ResponseFailure{Status: 401, Message: "Church mismatch for resource"}, authclient.FailurePrivilege},
		{"privilege wins over token keyword", authclient.ResponseFailure{Status: 401, Message: "permission denied: invalid token scope"}, authclient.FailurePrivilege},
		{"session code wins over privilege message", authclient.ResponseFailure{Status: 401, Code: "SESSION_EXPIRED", Message: "access denied"}, authclient.FailureInvalidCredential},
		{"not authorized without token stays privilege", authclient.ResponseFailure{Status: 401, Message: "Not authorized, no token"}, authclient.FailurePrivilege},
		{"not authorized token failed stays privilege", authclient.ResponseFailure{Status: 401, Message: "Not authorized, token failed"}, authclient.FailurePrivilege},
		{"unrecognized 401 keeps session", authclient.ResponseFailure{Status: 401, Message: "something odd"}, authclient.FailurePrivilege},
		{"empty 401 keeps session", authclient.ResponseFailure{Status: 401}, authclient.FailurePrivilege},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Classify(tc.failure))
		})
	}
}

func TestClassifierCustomRules(t *testing.T) {
	c := authclient.NewClassifier(authclient.ClassifierRules{
		PrivilegeKeywords:    []string{"  Nope "},
		InvalidTokenKeywords: []string{"gone"},
	})

	assert.Equal(t, authclient.FailurePrivilege, c.Classify(authclient.ResponseFailure{Status: 401, Message: "NOPE"}))
	assert.Equal(t, authclient.FailureInvalidCredential, c.Classify(authclient.ResponseFailure{Status: 401, Message: "token gone"}))
	// default keywords are not merged in
	assert.Equal(t, authclient.FailurePrivilege, c.Classify(authclient.ResponseFailure{Status: 401, Message: "jwt expired"}))
}

func TestFailureKindRevokesCredential(t *testing.T) {
	assert.True(t, authclient.FailureInvalidCredential.RevokesCredential())
	for _, k := range []authclient.FailureKind{
		authclient.FailureNone,
		authclient.FailureNetwork,
		authclient.FailurePrivilege,
		authclient.FailureRateLimited,
		authclient.FailureMalformedPayload,
		authclient.FailureRequest,
	} {
		assert.False(t, k.RevokesCredential(), k.String())
	}
}

func TestClassifierError(t *testing.T) {
	c := authclient.DefaultClassifier()

	t.Run("invalid credential", func(t *testing.T) {
		err := c.Error(authclient.FailureInvalidCredential, authclient.ResponseFailure{Status: 401, Message: "Invalid token"})
		assert.True(t, authclient.IsInvalidCredential(err))
		assert.Equal(t, goerrors.CategoryAuth, err.Category)
		assert.Equal(t, "Invalid token", err.Message)
		assert.Equal(t, 401, err.Code)
		assert.Equal(t, "invalid_credential", err.Metadata["kind"])
	})

	t.Run("privilege", func(t *testing.T) {
		err := c.Error(authclient.FailurePrivilege, authclient.ResponseFailure{Status: 401})
		assert.True(t, authclient.IsPrivilegeFailure(err))
		assert.Equal(t, goerrors.CategoryAuthz, err.Category)
		assert.Equal(t, "not authorized for this operation", err.Message)
	})

	t.Run("rate limited fallback message", func(t *testing.T) {
		err := c.Error(authclient.FailureRateLimited, authclient.ResponseFailure{Status: 429})
		assert.True(t, authclient.IsRateLimited(err))
		assert.Equal(t, "too many requests, try again later", err.Message)
	})

	t.Run("request failure keeps code", func(t *testing.T) {
		err := c.Error(authclient.FailureRequest, authclient.ResponseFailure{Status: http.StatusNotFound, Code: "NOT_FOUND"})
		assert.Equal(t, goerrors.CategoryNotFound, err.Category)
		assert.Equal(t, "Not Found", err.Message)
		assert.Equal(t, "NOT_FOUND", err.Metadata["code"])
		assert.Equal(t, authclient.TextCodeRequestFailed, err.TextCode)
	})

	t.Run("usable as error", func(t *testing.T) {
		var err error = c.Error(authclient.FailureRequest, authclient.ResponseFailure{Status: 409, Message: "taken"})
		var richErr *goerrors.Error
		require.True(t, errors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryConflict, richErr.Category)
	})
}
