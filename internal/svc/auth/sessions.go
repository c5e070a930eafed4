package auth

import (
	"context"
	"sync"
	"time"

	"github.com/wavechat/gateway/internal/svc/redis"
)

// SessionStore tracks revoked sessions. Tokens remain self-validating; the
// store only answers "was this session killed before its natural expiry".
type SessionStore interface {
	Revoke(ctx context.Context, sessionID string) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// revocation entries only need to outlive the longest token ttl
const revocationTTL = 30 * 24 * time.Hour

type redisSessions struct {
	redis redis.Instance
}

func NewRedisSessionStore(inst redis.Instance) SessionStore {
	return &redisSessions{redis: inst}
}

func (s *redisSessions) key(sessionID string) string {
	return s.redis.ComposeKey("sessions", "revoked", sessionID).String()
}

func (s *redisSessions) Revoke(ctx context.Context, sessionID string) error {
	return s.redis.RawClient().Set(ctx, s.key(sessionID), 1, revocationTTL).Err()
}

func (s *redisSessions) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redis.RawClient().Exists(ctx, s.key(sessionID)).Result()

	return n > 0, err
}

type memorySessions struct {
	mx      sync.Mutex
	revoked map[string]struct{}
}

func NewMemorySessionStore() SessionStore {
	return &memorySessions{revoked: map[string]struct{}{}}
}

func (s *memorySessions) Revoke(_ context.Context, sessionID string) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.revoked[sessionID] = struct{}{}

	return nil
}

func (s *memorySessions) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	_, ok := s.revoked[sessionID]

	return ok, nil
}
