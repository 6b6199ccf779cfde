package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript 는 ZSET 하나로 sliding window 를 원자적으로 갱신한다.
//
//	KEYS[1] = window key
//	ARGV    = now(ms), window(ms), max, member
//
// 승인 시 1, 거절 시 0 을 반환한다. 거절된 요청은 기록하지 않는다.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < max then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  return 1
end
return 0
`)

// RedisWindow 는 SlidingWindow 와 같은 규칙을 Redis 에 저장해
// 여러 인스턴스가 하나의 window 를 공유하도록 한다.
type RedisWindow struct {
	rdb    redis.Scripter
	prefix string
	max    int
	window time.Duration
	now    func() time.Time
}

type RedisOption func(*RedisWindow)

func WithRedisPrefix(prefix string) RedisOption {
	return func(r *RedisWindow) { r.prefix = strings.Trim(prefix, ":") }
}

func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *RedisWindow) { r.now = now }
}

func NewRedisWindow(rdb redis.Scripter, maxRequests int, window time.Duration, opts ...RedisOption) *RedisWindow {
	r := &RedisWindow{
		rdb:    rdb,
		prefix: "tracker:ratelimit",
		max:    maxRequests,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisWindow) Key(key string) string {
	return r.prefix + ":" + key
}

// Allow 는 Redis 호출이 실패하면 (true, err) 를 돌려준다.
// 판단할 수 없을 때는 요청을 통과시키고 호출자가 로그를 남긴다.
func (r *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now().UnixMilli()
	// 같은 ms 에 여러 인스턴스가 기록해도 member 가 겹치지 않아야 한다.
	member := uuid.NewString()

	res, err := slidingWindowScript.Run(ctx, r.rdb,
		[]string{r.Key(key)},
		now, r.window.Milliseconds(), r.max, member,
	).Int()
	if err != nil {
		return true, fmt.Errorf("redis sliding window: %w", err)
	}
	return res == 1, nil
}
