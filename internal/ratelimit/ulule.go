package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// UluleLimiter is a fixed window limiter on top of ulule/limiter's Redis store.
type UluleLimiter struct {
	Store limiter.Store
}

// NewUluleLimiter builds a limiter whose counters live under prefix in Redis.
func NewUluleLimiter(client *redis.Client, prefix string) (UluleLimiter, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:          prefix,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	})
	if err != nil {
		return UluleLimiter{}, err
	}
	return UluleLimiter{Store: store}, nil
}

// Allow implements Allower.
func (u UluleLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if u.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lim := limiter.New(u.Store, limiter.Rate{Period: window, Limit: int64(max)})
	res, err := lim.Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}
