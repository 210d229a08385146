package user

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCachedRepository(t *testing.T) (*CachedRepository, *MockRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mock := NewMockRepository()
	cached := NewCachedRepository(mock, client, time.Minute, zap.NewNop())
	return cached, mock, mr
}

func TestCachedRepository_GetByID(t *testing.T) {
	cached, mock, mr := newCachedRepository(t)
	ctx := context.Background()

	u := &User{ID: "user-1", Username: "testuser", Email: "test@example.com", PasswordHash: "hash"}
	require.NoError(t, mock.Create(ctx, u))

	got, err := cached.GetByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "testuser", got.Username)
	assert.True(t, mr.Exists("user_by_id:user-1"))

	// Second read is served from the cache.
	got, err = cached.GetByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "testuser", got.Username)

	_, err = cached.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("user_by_id:missing"))
}

func TestCachedRepository_EvictsOnMutation(t *testing.T) {
	cached, mock, mr := newCachedRepository(t)
	ctx := context.Background()

	u := &User{ID: "user-1", Username: "testuser", Email: "test@example.com", PasswordHash: "hash"}
	require.NoError(t, mock.Create(ctx, u))

	_, err := cached.GetByID(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, mr.Exists("user_by_id:user-1"))

	require.NoError(t, cached.UpdateFields(ctx, "user-1", map[string]interface{}{
		"username": "renamed",
	}))
	assert.False(t, mr.Exists("user_by_id:user-1"))

	// The next read sees the update, not a stale projection.
	got, err := cached.GetByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Username)
}

func TestCachedRepository_Expiry(t *testing.T) {
	cached, mock, mr := newCachedRepository(t)
	ctx := context.Background()

	u := &User{ID: "user-1", Username: "testuser", Email: "test@example.com", PasswordHash: "hash"}
	require.NoError(t, mock.Create(ctx, u))

	_, err := cached.GetByID(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, mr.Exists("user_by_id:user-1"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("user_by_id:user-1"))
}

func TestCachedRepository_CorruptEntry(t *testing.T) {
	cached, mock, mr := newCachedRepository(t)
	ctx := context.Background()

	u := &User{ID: "user-1", Username: "testuser", Email: "test@example.com", PasswordHash: "hash"}
	require.NoError(t, mock.Create(ctx, u))

	require.NoError(t, mr.Set("user_by_id:user-1", "not json"))

	got, err := cached.GetByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "testuser", got.Username)
}
