package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saypex/auth-service/internal/config"
)

const stateKeyPrefix = "oauth_state:"

var ErrStateNotFound = errors.New("oauth state not found")

type stateRecord struct {
	Provider    string `json:"provider"`
	RedirectURI string `json:"redirect_uri"`
}

// StateStore holds the CSRF state round-tripped through the provider
// redirect. Each state is single use: Consume deletes it atomically so
// a replayed callback can never match twice.
type StateStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStateStore(redisClient *redis.Client, cfg *config.OAuthConfig) *StateStore {
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore{redis: redisClient, ttl: ttl}
}

func (s *StateStore) key(state string) string {
	return stateKeyPrefix + state
}

func (s *StateStore) Create(ctx context.Context, provider, redirectURI string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	data, err := json.Marshal(stateRecord{Provider: provider, RedirectURI: redirectURI})
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, s.key(state), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("state store unavailable: %w", err)
	}
	return state, nil
}

func (s *StateStore) Consume(ctx context.Context, state string) (provider, redirectURI string, err error) {
	data, err := s.redis.GetDel(ctx, s.key(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", "", ErrStateNotFound
		}
		return "", "", fmt.Errorf("state store unavailable: %w", err)
	}
	var record stateRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return "", "", err
	}
	return record.Provider, record.RedirectURI, nil
}
