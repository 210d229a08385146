package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saypex/auth-service/internal/config"
)

func newChallengeStoreWithRedis(t *testing.T) (*ChallengeStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewChallengeStore(client, &config.TFAConfig{
		ChallengeTTL:         time.Minute,
		ChallengeMaxAttempts: 3,
	})
	return store, mr
}

func TestChallengeStore_CreateAndGet(t *testing.T) {
	store, _ := newChallengeStoreWithRedis(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	userID, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestChallengeStore_Expiry(t *testing.T) {
	store, mr := newChallengeStoreWithRedis(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestChallengeStore_RecordFailure(t *testing.T) {
	store, _ := newChallengeStoreWithRedis(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1")
	require.NoError(t, err)

	exceeded, err := store.RecordFailure(ctx, id)
	require.NoError(t, err)
	assert.False(t, exceeded)

	exceeded, err = store.RecordFailure(ctx, id)
	require.NoError(t, err)
	assert.False(t, exceeded)

	// Third failure hits the cap and deletes the challenge.
	exceeded, err = store.RecordFailure(ctx, id)
	require.NoError(t, err)
	assert.True(t, exceeded)

	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestChallengeStore_RecordFailure_PreservesTTL(t *testing.T) {
	store, mr := newChallengeStoreWithRedis(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1")
	require.NoError(t, err)

	_, err = store.RecordFailure(ctx, id)
	require.NoError(t, err)

	// The failure bump must not reset the expiry clock.
	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestChallengeStore_RecordFailure_AfterExpiry(t *testing.T) {
	store, mr := newChallengeStoreWithRedis(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.RecordFailure(ctx, id)
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	// No immortal counter stub may survive the expired challenge.
	assert.False(t, mr.Exists("tfa_challenge:"+id))
}

func TestChallengeStore_RecordFailure_Concurrent(t *testing.T) {
	store, _ := newChallengeStoreWithRedis(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1")
	require.NoError(t, err)

	// Three simultaneous bad codes against a cap of three: the atomic
	// counter must see every one of them.
	var wg sync.WaitGroup
	exceeded := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			over, err := store.RecordFailure(ctx, id)
			assert.NoError(t, err)
			exceeded <- over
		}()
	}
	wg.Wait()
	close(exceeded)

	var overCount int
	for over := range exceeded {
		if over {
			overCount++
		}
	}
	assert.Equal(t, 1, overCount)

	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestChallengeStore_Delete(t *testing.T) {
	store, _ := newChallengeStoreWithRedis(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, id))

	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}
