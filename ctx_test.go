package authclient_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	authclient "github.com/goliatone/go-auth-client"
)

func TestSessionContext(t *testing.T) {
	ctx := context.Background()

	_, ok := authclient.SessionFromContext(ctx)
	assert.False(t, ok)
	_, ok = authclient.UserFromContext(ctx)
	assert.False(t, ok)
	assert.False(t, authclient.Can(ctx, authclient.CapabilityLeader))

	snap := authclient.Snapshot{
		User:            &authclient.User{ID: "u1", Role: authclient.RoleLeader},
		Token:           "t1",
		IsAuthenticated: true,
		Status:          authclient.StatusAuthenticated,
	}
	ctx = authclient.WithSession(ctx, snap)

	got, ok := authclient.SessionFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "t1", got.Token)

	user, ok := authclient.UserFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", user.ID)

	assert.True(t, authclient.Can(ctx, authclient.CapabilitySendMessages))
	assert.False(t, authclient.Can(ctx, authclient.CapabilitySelectChurch))
	assert.False(t, authclient.Can(ctx, "unknown"))
}

func TestCanRequiresAuthenticatedSession(t *testing.T) {
	snap := authclient.Snapshot{
		User:   &authclient.User{ID: "u1", Role: authclient.RoleAdmin},
		Status: authclient.StatusUnauthenticated,
	}
	ctx := authclient.WithSession(context.Background(), snap)
	assert.False(t, authclient.Can(ctx, authclient.CapabilityLeader))
}

func TestSelectionContext(t *testing.T) {
	_, ok := authclient.SelectionFromContext(context.Background())
	assert.False(t, ok)

	sel := authclient.Selection{Church: &authclient.Church{ID: "c1"}, Source: authclient.SelectionHome}
	ctx := authclient.WithSelection(context.Background(), sel)

	got, ok := authclient.SelectionFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "c1", got.ID())
	assert.Equal(t, authclient.SelectionHome, got.Source)
}
