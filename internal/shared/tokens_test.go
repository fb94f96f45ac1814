package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenStore(t *testing.T) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenStore(client, time.Hour), mr
}

func TestTokenStoreIssueResolveRevoke(t *testing.T) {
	store, _ := newTestTokenStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, 7, "machinist")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	_, err = uuid.Parse(token)
	assert.NoError(t, err, "token must come from the random generator")

	actor, err := store.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), actor.ID)
	assert.Equal(t, "machinist", actor.Handle)

	require.NoError(t, store.Revoke(ctx, token))
	_, err = store.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenStoreExpiry(t *testing.T) {
	store, mr := newTestTokenStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, 3, "operator")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = store.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenStoreIssueUniqueTokens(t *testing.T) {
	store, _ := newTestTokenStore(t)
	ctx := context.Background()

	first, err := store.Issue(ctx, 1, "a")
	require.NoError(t, err)
	second, err := store.Issue(ctx, 1, "a")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
