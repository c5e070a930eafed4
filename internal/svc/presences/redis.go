package presences

import (
	"context"
	"strconv"
	"time"

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

// NewRedis returns the registry backed by the shared redis deployment. This
// is the mode used when multiple gateway instances run behind one platform.
func NewRedis(opt RedisOptions) Instance {
	return &redisInst{redis: opt.Redis}
}

func (p *redisInst) presenceKey(userID structures.ID) string {
	return p.redis.ComposeKey("presence", userID.String()).String()
}

func (p *redisInst) onlineKey() string {
	return p.redis.ComposeKey("presence", "online").String()
}

func (p *redisInst) typingKey(channelID structures.ID) string {
	return p.redis.ComposeKey("typing", channelID.String()).String()
}

func (p *redisInst) socketsKey(userID structures.ID) string {
	return p.redis.ComposeKey("sockets", userID.String()).String()
}

func (p *redisInst) SetPresence(ctx context.Context, userID structures.ID, status structures.PresenceStatus, customStatus string) error {
	rec := structures.PresenceRecord{
		UserID:       userID,
		Status:       status,
		CustomStatus: customStatus,
		LastSeenAt:   time.Now(),
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	rc := p.redis.RawClient()

	if err := rc.Set(ctx, p.presenceKey(userID), b, PresenceTTL).Err(); err != nil {
		return err
	}

	if status == structures.PresenceStatusOffline {
		return rc.ZRem(ctx, p.onlineKey(), userID.String()).Err()
	}

	return rc.ZAdd(ctx, p.onlineKey(), &goredis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: userID.String(),
	}).Err()
}

func (p *redisInst) GetPresence(ctx context.Context, userID structures.ID) (structures.PresenceRecord, bool, error) {
	val, err := p.redis.RawClient().Get(ctx, p.presenceKey(userID)).Result()
	if err == goredis.Nil {
		return structures.PresenceRecord{}, false, nil
	} else if err != nil {
		return structures.PresenceRecord{}, false, err
	}

	var rec structures.PresenceRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return structures.PresenceRecord{}, false, err
	}

	return rec, true, nil
}

func (p *redisInst) GetPresences(ctx context.Context, userIDs []structures.ID) (map[structures.ID]structures.PresenceRecord, error) {
	if len(userIDs) == 0 {
		return map[structures.ID]structures.PresenceRecord{}, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = p.presenceKey(id)
	}

	vals, err := p.redis.RawClient().MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[structures.ID]structures.PresenceRecord, len(userIDs))

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}

		var rec structures.PresenceRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}

		result[userIDs[i]] = rec
	}

	return result, nil
}

func (p *redisInst) OnlineCount(ctx context.Context) (int64, error) {
	rc := p.redis.RawClient()
	cutoff := time.Now().Add(-PresenceTTL).UnixMilli()

	if err := rc.ZRemRangeByScore(ctx, p.onlineKey(), "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return 0, err
	}

	return rc.ZCard(ctx, p.onlineKey()).Result()
}

func (p *redisInst) MarkTyping(ctx context.Context, channelID, userID structures.ID) error {
	rc := p.redis.RawClient()
	key := p.typingKey(channelID)

	pipe := rc.TxPipeline()
	pipe.HSet(ctx, key, userID.String(), time.Now().UnixMilli())
	pipe.Expire(ctx, key, TypingTTL)

	_, err := pipe.Exec(ctx)

	return err
}

func (p *redisInst) TypingUsers(ctx context.Context, channelID structures.ID) ([]structures.TypingMark, error) {
	entries, err := p.redis.RawClient().HGetAll(ctx, p.typingKey(channelID)).Result()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	marks := make([]structures.TypingMark, 0, len(entries))

	for uid, tsRaw := range entries {
		userID, err := structures.ParseID(uid)
		if err != nil {
			continue
		}

		ms, err := strconv.ParseInt(tsRaw, 10, 64)
		if err != nil {
			continue
		}

		ts := time.UnixMilli(ms)
		if now.Sub(ts) > TypingTTL {
			// The map-level expiry has not fired yet; stale marks must never
			// surface.
			continue
		}

		marks = append(marks, structures.TypingMark{
			ChannelID: channelID,
			UserID:    userID,
			Timestamp: ts,
		})
	}

	return marks, nil
}

func socketMember(sessionID, socketID string) string {
	return sessionID + "/" + socketID
}

func (p *redisInst) RegisterSocket(ctx context.Context, userID structures.ID, sessionID, socketID string) error {
	return p.redis.RawClient().SAdd(ctx, p.socketsKey(userID), socketMember(sessionID, socketID)).Err()
}

func (p *redisInst) UnregisterSocket(ctx context.Context, userID structures.ID, sessionID, socketID string) (bool, error) {
	rc := p.redis.RawClient()

	pipe := rc.TxPipeline()
	pipe.SRem(ctx, p.socketsKey(userID), socketMember(sessionID, socketID))
	card := pipe.SCard(ctx, p.socketsKey(userID))

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return card.Val() == 0, nil
}

func (p *redisInst) SocketsOf(ctx context.Context, userID structures.ID) ([]string, error) {
	return p.redis.RawClient().SMembers(ctx, p.socketsKey(userID)).Result()
}

func (p *redisInst) HasAnySocket(ctx context.Context, userID structures.ID) (bool, error) {
	n, err := p.redis.RawClient().SCard(ctx, p.socketsKey(userID)).Result()

	return n > 0, err
}
