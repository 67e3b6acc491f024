package authclient_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-auth-client"
)

func TestInspectToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	info, err := authclient.InspectToken(signedToken(t, "u1", exp))
	require.NoError(t, err)

	assert.Equal(t, "u1", info.Subject)
	assert.Equal(t, "test", info.Issuer)
	require.NotNil(t, info.ExpiresAt)
	assert.True(t, info.ExpiresAt.Equal(exp))
	require.NotNil(t, info.IssuedAt)

	assert.False(t, info.Expired(time.Now()))
	assert.True(t, info.Expired(exp.Add(time.Second)))

	left, ok := info.Remaining(exp.Add(-time.Minute))
	assert.True(t, ok)
	assert.Equal(t, time.Minute, left)
}

func TestInspectTokenOpaque(t *testing.T) {
	for _, raw := range []string{"", "opaque-session-token", "a.b.c"} {
		_, err := authclient.InspectToken(raw)
		assert.True(t, authclient.IsMalformedPayload(err), raw)
	}
}

func TestTokenInfoWithoutExpiry(t *testing.T) {
	var nilInfo *authclient.TokenInfo
	assert.False(t, nilInfo.Expired(time.Now()))

	_, ok := (&authclient.TokenInfo{Subject: "u1"}).Remaining(time.Now())
	assert.False(t, ok)
}
