package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/wavechat/gateway/internal/svc/redis"
)

type redisInst struct {
	redis  redis.Instance
	script string

	mx sync.Mutex
}

type RedisOptions struct {
	Redis redis.Instance
}

// NewRedis returns a limiter that counts hits in redis so the window is
// shared by every gateway instance.
func NewRedis(ctx context.Context, opt RedisOptions) (Instance, error) {
	l := &redisInst{redis: opt.Redis}

	if err := l.loadScript(ctx); err != nil {
		return l, err
	}

	return l, nil
}

func (inst *redisInst) loadScript(ctx context.Context) error {
	inst.mx.Lock()
	defer inst.mx.Unlock()

	var err error

	inst.script, err = inst.redis.RawClient().ScriptLoad(ctx, `
		local key = ARGV[1]
		local expire = tonumber(ARGV[2])

		local exists = redis.call("EXISTS", key)

		local count = redis.call("INCRBY", key, 1)

		if exists == 0 then
			redis.call("EXPIRE", key, expire)
			return {count, expire}
		end

		local ttl = redis.call("TTL", key)

		return {count, ttl}
`).Result()

	return err
}

func (inst *redisInst) Test(ctx context.Context, bucket string, limit int64, window time.Duration) (Result, error) {
	k := inst.redis.ComposeKey("rl", bucket)

	res, err := inst.redis.RawClient().EvalSha(
		ctx,
		inst.script,
		[]string{},
		k.String(),
		int64(window.Seconds()),
	).Result()
	if err != nil {
		return Result{}, err
	}

	var count, ttl int64

	if arr, ok := res.([]any); ok && len(arr) == 2 {
		count, _ = arr[0].(int64)
		ttl, _ = arr[1].(int64)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(time.Duration(ttl) * time.Second),
	}, nil
}
