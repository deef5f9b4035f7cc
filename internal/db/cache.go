package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	redis "github.com/redis/go-redis/v9"
)

const accountTTL = 5 * time.Minute

// Кэш счетов в Redis, только для отображения
type CacheService struct {
	client *redis.Client
}

func NewRedisClient(ctx context.Context, addr string, user string, pwd string) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("env REWARDS_CACHE_URL is not set")
	}
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    pwd,
		Username:    user,
		DB:          0,
		MaxRetries:  5,
		DialTimeout: 10 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

func NewCacheService(client *redis.Client) *CacheService {
	return &CacheService{client}
}

func accountKey(user string) string {
	return "account:" + user
}

func (c *CacheService) GetAccount(ctx context.Context, user string) (model.LoyaltyAccount, error) {
	val, err := c.client.Get(ctx, accountKey(user)).Bytes()
	if err == redis.Nil {
		return model.LoyaltyAccount{}, fmt.Errorf("account %s %w", user, model.ErrNotFound)
	} else if err != nil {
		return model.LoyaltyAccount{}, err
	}
	var acc model.LoyaltyAccount
	if err := json.Unmarshal(val, &acc); err != nil {
		return model.LoyaltyAccount{}, err
	}
	return acc, nil
}

func (c *CacheService) SetAccount(ctx context.Context, account model.LoyaltyAccount) error {
	val, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, accountKey(account.UserID), val, accountTTL).Err()
}

func (c *CacheService) InvalidateAccount(ctx context.Context, user string) error {
	return c.client.Del(ctx, accountKey(user)).Err()
}
