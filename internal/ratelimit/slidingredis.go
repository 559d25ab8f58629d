package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	// ResetAt is when the oldest counted event leaves the window.
	ResetAt time.Time
}

// slidingWindow trims expired events and records the new one only when it
// fits, so rejected calls do not extend a caller's lockout.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
local allowed = 0
if count < tonumber(ARGV[4]) then
	redis.call('ZADD', key, ARGV[1], ARGV[5])
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', key, ARGV[3])
local reset = tonumber(ARGV[1]) + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
	reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

// Limiter is a sliding-window limiter over Redis sorted sets, one set per
// key, scored in milliseconds.
type Limiter struct {
	Client redis.Scripter
	Prefix string
	Now    func() time.Time
}

// Allow counts an event for key against limit events per window.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: max(limit, 0), ResetAt: now.Add(window)}, nil
	}
	if key == "" {
		return Decision{}, errors.New("ratelimit: empty key")
	}

	nowMs := now.UnixMilli()
	windowMs := max(window.Milliseconds(), 1)
	args := []any{
		strconv.FormatInt(nowMs, 10),
		strconv.FormatInt(nowMs-windowMs, 10),
		strconv.FormatInt(windowMs, 10),
		strconv.Itoa(limit),
		uuid.NewString(),
	}
	res, err := slidingWindow.Run(ctx, l.Client, []string{l.Prefix + key}, args...).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	return Decision{
		Allowed:   res[0] == 1,
		Remaining: max(limit-int(res[1]), 0),
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}
