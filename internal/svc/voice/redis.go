package voice

import (
	"context"

	goredis "github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
	"github.com/wavechat/gateway/internal/structures"
	"github.com/wavechat/gateway/internal/svc/redis"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type redisInst struct {
	redis redis.Instance
}

type RedisOptions struct {
	Redis redis.Instance
}

func NewRedis(opt RedisOptions) Instance {
	return &redisInst{redis: opt.Redis}
}

func (v *redisInst) key(userID structures.ID) string {
	return v.redis.ComposeKey("voice", userID.String()).String()
}

func (v *redisInst) Set(ctx context.Context, state structures.VoiceState) (structures.VoiceState, bool, error) {
	prev, ok, err := v.Get(ctx, state.UserID)
	if err != nil {
		return structures.VoiceState{}, false, err
	}

	b, err := json.Marshal(state)
	if err != nil {
		return structures.VoiceState{}, false, err
	}

	if err := v.redis.RawClient().Set(ctx, v.key(state.UserID), b, 0).Err(); err != nil {
		return structures.VoiceState{}, false, err
	}

	return prev, ok && prev.ChannelID != state.ChannelID, nil
}

func (v *redisInst) Get(ctx context.Context, userID structures.ID) (structures.VoiceState, bool, error) {
	val, err := v.redis.RawClient().Get(ctx, v.key(userID)).Result()
	if err == goredis.Nil {
		return structures.VoiceState{}, false, nil
	} else if err != nil {
		return structures.VoiceState{}, false, err
	}

	var state structures.VoiceState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return structures.VoiceState{}, false, err
	}

	return state, true, nil
}

func (v *redisInst) Clear(ctx context.Context, userID structures.ID) (structures.VoiceState, bool, error) {
	state, ok, err := v.Get(ctx, userID)
	if err != nil || !ok {
		return structures.VoiceState{}, false, err
	}

	if err := v.redis.RawClient().Del(ctx, v.key(userID)).Err(); err != nil {
		return structures.VoiceState{}, false, err
	}

	return state, true, nil
}
