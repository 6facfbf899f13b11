package repository

import (
	"context"
	"errors"
	"time"

	"places-server/logger"
	"places-server/models"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
)

// CachedUserRepository is a read-through Redis cache in front of another
// UserRepository. Documents are cached by id under "user:<id>" and refreshed
// on every mutation. Cache failures are logged and fall back to the store.
type CachedUserRepository struct {
	UserRepository
	redisClient *redis.Client
	ttl         time.Duration
}

func NewCachedUserRepository(next UserRepository, redisClient *redis.Client, ttl time.Duration) *CachedUserRepository {
	return &CachedUserRepository{UserRepository: next, redisClient: redisClient, ttl: ttl}
}

func userKey(id string) string { return "user:" + id }

func (c *CachedUserRepository) Create(ctx context.Context, u *models.User) error {
	if err := c.UserRepository.Create(ctx, u); err != nil {
		return err
	}
	c.store(ctx, u)
	return nil
}

func (c *CachedUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	raw, err := c.redisClient.Get(ctx, userKey(id)).Bytes()
	if err == nil {
		var user models.User
		if err := bson.Unmarshal(raw, &user); err == nil {
			return &user, nil
		}
		logger.Log.Warnw("discarding undecodable cached user", "user_id", id, "err", err)
	} else if !errors.Is(err, redis.Nil) {
		logger.Log.Warnw("user cache read failed", "user_id", id, "err", err)
	}

	user, err := c.UserRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, user)
	return user, nil
}

func (c *CachedUserRepository) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	return c.refresh(ctx, id)(c.UserRepository.UpdateProfile(ctx, id, upd))
}

func (c *CachedUserRepository) AddFriend(ctx context.Context, id, friendID string) (*models.User, error) {
	return c.refresh(ctx, id)(c.UserRepository.AddFriend(ctx, id, friendID))
}

func (c *CachedUserRepository) RemoveFriend(ctx context.Context, id, friendID string) (*models.User, error) {
	return c.refresh(ctx, id)(c.UserRepository.RemoveFriend(ctx, id, friendID))
}

// refresh returns a continuation that re-caches a successfully mutated user,
// or evicts the entry when the mutation failed.
func (c *CachedUserRepository) refresh(ctx context.Context, id string) func(*models.User, error) (*models.User, error) {
	return func(user *models.User, err error) (*models.User, error) {
		if err != nil {
			c.redisClient.Del(ctx, userKey(id))
			return nil, err
		}
		c.store(ctx, user)
		return user, nil
	}
}

func (c *CachedUserRepository) store(ctx context.Context, user *models.User) {
	raw, err := bson.Marshal(user)
	if err != nil {
		logger.Log.Warnw("failed to encode user for cache", "user_id", user.ID, "err", err)
		return
	}
	if err := c.redisClient.Set(ctx, userKey(user.ID), raw, c.ttl).Err(); err != nil {
		logger.Log.Warnw("user cache write failed", "user_id", user.ID, "err", err)
	}
}
