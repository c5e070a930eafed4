package structures

import "time"

type PresenceStatus string

const (
	PresenceStatusOnline    PresenceStatus = "online"
	PresenceStatusIdle      PresenceStatus = "idle"
	PresenceStatusDND       PresenceStatus = "dnd"
	PresenceStatusOffline   PresenceStatus = "offline"
	PresenceStatusInvisible PresenceStatus = "invisible"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceStatusOnline, PresenceStatusIdle, PresenceStatusDND,
		PresenceStatusOffline, PresenceStatusInvisible:
		return true
	}

	return false
}

// Broadcast returns the status as seen by other users. Invisible users
// present as offline everywhere except to themselves.
func (s PresenceStatus) Broadcast() PresenceStatus {
	if s == PresenceStatusInvisible {
		return PresenceStatusOffline
	}

	return s
}

// PresenceRecord is TTL-bounded soft state. The authoritative answer to "is
// this user online" is the union of socket registrations across instances,
// not any single instance's memory.
type PresenceRecord struct {
	UserID       ID             `json:"user_id"`
	Status       PresenceStatus `json:"status"`
	CustomStatus string         `json:"custom_status,omitempty"`
	LastSeenAt   time.Time      `json:"last_seen_at"`
}

// TypingMark is valid only while younger than the typing TTL; stale marks are
// filtered at read time rather than eagerly deleted.
type TypingMark struct {
	ChannelID ID        `json:"channel_id"`
	UserID    ID        `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// VoiceState tracks a user's participation in a voice channel. A user holds
// at most one active voice channel at a time.
type VoiceState struct {
	UserID       ID     `json:"user_id"`
	GuildID      ID     `json:"guild_id,omitempty"`
	ChannelID    ID     `json:"channel_id"`
	SessionID    string `json:"session_id"`
	SelfMuted    bool   `json:"self_mute"`
	SelfDeafened bool   `json:"self_deaf"`
	VideoEnabled bool   `json:"self_video"`
}
