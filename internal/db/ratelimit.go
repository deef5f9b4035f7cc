package rewards

import (
	"context"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	redis "github.com/redis/go-redis/v9"
)

// Окно создается первым INCR, срок задается один раз.
// Возвращает счетчик после INCR и оставшееся время окна в мс
var rateScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Ограничитель частоты в Redis, общий для всех экземпляров
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client, "ratelimit:"}
}

func (l *RedisLimiter) Check(ctx context.Context, key string, maxAttempts int, window time.Duration) (model.RateDecision, error) {
	res, err := rateScript.Run(ctx, l.client, []string{l.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return model.RateDecision{}, err
	}
	count, resetIn := int(res[0]), time.Duration(res[1])*time.Millisecond
	if count > maxAttempts {
		return model.RateDecision{Limited: true, Remaining: 0, ResetIn: resetIn}, nil
	}
	return model.RateDecision{Limited: false, Remaining: maxAttempts - count, ResetIn: resetIn}, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}
