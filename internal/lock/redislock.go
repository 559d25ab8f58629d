package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrTimeout is returned when another holder keeps the lock past MaxWait.
var ErrTimeout = errors.New("lock: timed out waiting for lock")

// release deletes the key only while it still carries our token, so a holder
// whose ttl lapsed cannot free a successor's lock.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const maxBackoffFactor = 8

// Locker is a single-key Redis mutex. Keys are SET NX with a ttl and polled
// with a growing backoff while held elsewhere.
type Locker struct {
	R            redis.Cmdable
	Prefix       string
	RetryBackoff time.Duration
	// MaxWait bounds how long WithLock polls for a held lock. Zero waits until
	// the context is done.
	MaxWait time.Duration
}

// WithLock runs fn while holding key. The lock is released when fn returns,
// whether or not it failed.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	base := l.RetryBackoff
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	key = l.Prefix + key
	token := uuid.NewString()

	var deadline <-chan time.Time
	if l.MaxWait > 0 {
		timer := time.NewTimer(l.MaxWait)
		defer timer.Stop()
		deadline = timer.C
	}

	wait := base
	for attempt := 1; ; attempt++ {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			if attempt > 1 {
				zerolog.Ctx(ctx).Debug().Str("lock", key).Int("attempts", attempt).Msg("lock acquired after contention")
			}
			defer l.unlock(ctx, key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-deadline:
			timer.Stop()
			return ErrTimeout
		case <-timer.C:
		}
		wait = min(wait*2, base*maxBackoffFactor)
	}
}

// unlock runs on a fresh context so a cancelled request still frees its lock.
func (l Locker) unlock(ctx context.Context, key, token string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := release.Run(releaseCtx, l.R, []string{key}, token).Err(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("lock", key).Msg("lock release failed, waiting for ttl")
	}
}
