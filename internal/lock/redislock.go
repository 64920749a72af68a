package lock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-commerce/internal/common"
)

// ErrBusy is returned when the lock stays held past MaxWait.
var ErrBusy = errors.New("lock: resource busy")

const defaultTTL = 30 * time.Second

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Locker is a Redis lease lock. Carts use it to serialise mutations and
// checkout for one customer across API replicas. While fn runs the lease is
// extended every ttl/3 so slow work does not lose the lock.
type Locker struct {
	R            redis.Cmdable
	RetryBackoff time.Duration
	// MaxWait bounds how long WithLock polls for a held lock. Zero waits
	// until ctx is done.
	MaxWait time.Duration
}

// WithLock runs fn while holding key. The lease is released when fn returns,
// whatever its result. Failing to acquire within MaxWait yields a 409
// AppError wrapping ErrBusy.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.keepAlive(context.WithoutCancel(ctx), key, token, ttl, stop)
	}()
	defer func() {
		close(stop)
		<-done
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.R, []string{key}, token).Err()
	}()
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	var deadline time.Time
	if l.MaxWait > 0 {
		deadline = time.Now().Add(l.MaxWait)
	}
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return common.NewAppError("RESOURCE_BUSY", "resource is busy, retry later", http.StatusConflict, ErrBusy)
		}
		timer := time.NewTimer(l.backoff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l Locker) keepAlive(ctx context.Context, key, token string, ttl time.Duration, stop <-chan struct{}) {
	interval := ttl / 3
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := extendScript.Run(ctx, l.R, []string{key}, token, ttl.Milliseconds()).Int64()
			if err != nil || held == 0 {
				return
			}
		}
	}
}

// backoff adds up to 50% jitter so waiting replicas do not poll in step.
func (l Locker) backoff() time.Duration {
	base := l.RetryBackoff
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	return base + time.Duration(rand.Int64N(int64(base)/2+1))
}
