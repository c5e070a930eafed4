package presences

import (
	"context"
	"time"

	"github.com/wavechat/gateway/internal/structures"
)

const (
	// PresenceTTL bounds how long a presence record survives without refresh.
	PresenceTTL = 5 * time.Minute
	// TypingTTL bounds how long a typing mark counts as active.
	TypingTTL = 10 * time.Second
)

// Instance is the registry shared by all gateway instances. It owns the
// global online set, per-channel typing maps and per-user socket sets; every
// operation is safe for concurrent use from arbitrarily many connection
// handlers.
type Instance interface {
	// SetPresence writes a TTL'd presence record. A non-offline status also
	// (re)inserts the user into the online set keyed by last activity;
	// offline removes them.
	SetPresence(ctx context.Context, userID structures.ID, status structures.PresenceStatus, customStatus string) error

	// GetPresence returns the record and whether one exists. Absent or
	// expired entries report ok=false; callers treat unknown as offline.
	GetPresence(ctx context.Context, userID structures.ID) (structures.PresenceRecord, bool, error)
	GetPresences(ctx context.Context, userIDs []structures.ID) (map[structures.ID]structures.PresenceRecord, error)

	// OnlineCount prunes entries older than the presence TTL from the online
	// set, then returns its size.
	OnlineCount(ctx context.Context) (int64, error)

	MarkTyping(ctx context.Context, channelID, userID structures.ID) error
	// TypingUsers filters out marks older than TypingTTL at read time,
	// regardless of whether the backing expiry has fired.
	TypingUsers(ctx context.Context, channelID structures.ID) ([]structures.TypingMark, error)

	RegisterSocket(ctx context.Context, userID structures.ID, sessionID, socketID string) error
	// UnregisterSocket reports whether this removal left the user with no
	// active sockets anywhere. Only the last unregister may transition
	// presence to offline.
	UnregisterSocket(ctx context.Context, userID structures.ID, sessionID, socketID string) (last bool, err error)
	SocketsOf(ctx context.Context, userID structures.ID) ([]string, error)
	HasAnySocket(ctx context.Context, userID structures.ID) (bool, error)
}
