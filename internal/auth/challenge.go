package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/saypex/auth-service/internal/config"
)

const (
	challengeKeyPrefix    = "tfa_challenge:"
	challengeUserField    = "user_id"
	challengeAttemptField = "attempts"
)

var ErrChallengeNotFound = errors.New("challenge not found")

// ChallengeStore holds pending two-factor login markers in Redis. A
// challenge proves the password phase succeeded; it expires after a
// short TTL and is deleted once consumed or after too many bad codes.
// Each challenge is a hash so the attempt counter can be bumped with a
// single HINCRBY, keeping concurrent failures accurately counted.
type ChallengeStore struct {
	redis       *redis.Client
	ttl         time.Duration
	maxAttempts int
}

func NewChallengeStore(redisClient *redis.Client, cfg *config.TFAConfig) *ChallengeStore {
	ttl := cfg.ChallengeTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	maxAttempts := cfg.ChallengeMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &ChallengeStore{
		redis:       redisClient,
		ttl:         ttl,
		maxAttempts: maxAttempts,
	}
}

func (s *ChallengeStore) key(id string) string {
	return challengeKeyPrefix + id
}

func (s *ChallengeStore) Create(ctx context.Context, userID string) (string, error) {
	id := uuid.NewString()
	key := s.key(id)

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key, challengeUserField, userID)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("challenge store unavailable: %w", err)
	}
	return id, nil
}

func (s *ChallengeStore) Get(ctx context.Context, id string) (string, error) {
	userID, err := s.redis.HGet(ctx, s.key(id), challengeUserField).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrChallengeNotFound
		}
		return "", fmt.Errorf("challenge store unavailable: %w", err)
	}
	return userID, nil
}

// RecordFailure atomically bumps the attempt counter; the hash keeps
// its original TTL. When the cap is reached the challenge is deleted
// and exceeded=true is returned; the caller must then restart login
// from the password phase.
func (s *ChallengeStore) RecordFailure(ctx context.Context, id string) (bool, error) {
	key := s.key(id)

	attempts, err := s.redis.HIncrBy(ctx, key, challengeAttemptField, 1).Result()
	if err != nil {
		return false, fmt.Errorf("challenge store unavailable: %w", err)
	}

	// If the challenge expired between the failed verify and the bump,
	// HINCRBY has recreated a bare counter with no TTL. Drop it.
	hasUser, err := s.redis.HExists(ctx, key, challengeUserField).Result()
	if err != nil {
		return false, fmt.Errorf("challenge store unavailable: %w", err)
	}
	if !hasUser {
		_ = s.redis.Del(ctx, key).Err()
		return false, ErrChallengeNotFound
	}

	if attempts >= int64(s.maxAttempts) {
		if err := s.Delete(ctx, id); err != nil {
			return true, err
		}
		return true, nil
	}
	return false, nil
}

func (s *ChallengeStore) Delete(ctx context.Context, id string) error {
	return s.redis.Del(ctx, s.key(id)).Err()
}
