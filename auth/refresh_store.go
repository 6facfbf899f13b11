package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshTokenStore is the allow-list of refresh tokens that have not been
// revoked. A token absent from the store cannot be refreshed even when its
// signature is still valid.
type RefreshTokenStore interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
	Remove(ctx context.Context, token string) error
}

// MemoryRefreshStore is a process-local allow-list. Entries expire with the
// token they track.
type MemoryRefreshStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{tokens: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryRefreshStore) Add(_ context.Context, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for t, exp := range s.tokens {
		if !now.Before(exp) {
			delete(s.tokens, t)
		}
	}
	s.tokens[token] = now.Add(ttl)
	return nil
}

func (s *MemoryRefreshStore) Contains(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.tokens[token]
	return ok && s.now().Before(exp), nil
}

func (s *MemoryRefreshStore) Remove(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, token)
	return nil
}

// RedisRefreshStore keeps the allow-list in Redis so every API process shares
// it. Tokens are stored by SHA-256 digest with the token lifetime as TTL.
type RedisRefreshStore struct {
	redisClient *redis.Client
}

func NewRedisRefreshStore(redisClient *redis.Client) *RedisRefreshStore {
	return &RedisRefreshStore{redisClient: redisClient}
}

func refreshKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "refresh_token:" + hex.EncodeToString(sum[:])
}

func (s *RedisRefreshStore) Add(ctx context.Context, token string, ttl time.Duration) error {
	return s.redisClient.Set(ctx, refreshKey(token), 1, ttl).Err()
}

func (s *RedisRefreshStore) Contains(ctx context.Context, token string) (bool, error) {
	n, err := s.redisClient.Exists(ctx, refreshKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisRefreshStore) Remove(ctx context.Context, token string) error {
	return s.redisClient.Del(ctx, refreshKey(token)).Err()
}
