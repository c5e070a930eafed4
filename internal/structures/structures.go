package structures

import "time"

type User struct {
	ID            ID     `json:"id" bson:"_id"`
	Username      string `json:"username" bson:"username"`
	Discriminator string `json:"discriminator" bson:"discriminator"`
	AvatarID      string `json:"avatar_id,omitempty" bson:"avatar_id,omitempty"`
	Bot           bool   `json:"bot,omitempty" bson:"bot,omitempty"`
}

type Guild struct {
	ID      ID     `json:"id" bson:"_id"`
	Name    string `json:"name" bson:"name"`
	OwnerID ID     `json:"owner_id" bson:"owner_id"`
}

type Role struct {
	ID          ID         `json:"id" bson:"_id"`
	GuildID     ID         `json:"guild_id" bson:"guild_id"`
	Name        string     `json:"name" bson:"name"`
	Position    int32      `json:"position" bson:"position"`
	Color       int32      `json:"color" bson:"color"`
	Permissions Permission `json:"permissions" bson:"permissions"`
}

type ChannelType int8

const (
	ChannelTypeGuildText ChannelType = iota
	ChannelTypeDM
	ChannelTypeGuildVoice
	ChannelTypeGroupDM
)

type Channel struct {
	ID         ID          `json:"id" bson:"_id"`
	GuildID    ID          `json:"guild_id,omitempty" bson:"guild_id,omitempty"`
	Type       ChannelType `json:"type" bson:"type"`
	Name       string      `json:"name,omitempty" bson:"name,omitempty"`
	Overwrites []Overwrite `json:"overwrites,omitempty" bson:"overwrites,omitempty"`
	// RecipientIDs is set for DM and group DM channels.
	RecipientIDs []ID `json:"recipient_ids,omitempty" bson:"recipient_ids,omitempty"`
}

type Member struct {
	UserID   ID        `json:"user_id" bson:"user_id"`
	GuildID  ID        `json:"guild_id" bson:"guild_id"`
	Nick     string    `json:"nick,omitempty" bson:"nick,omitempty"`
	RoleIDs  []ID      `json:"role_ids" bson:"role_ids"`
	JoinedAt time.Time `json:"joined_at" bson:"joined_at"`
}

type Message struct {
	ID          ID           `json:"id" bson:"_id"`
	ChannelID   ID           `json:"channel_id" bson:"channel_id"`
	GuildID     ID           `json:"guild_id,omitempty" bson:"guild_id,omitempty"`
	AuthorID    ID           `json:"author_id" bson:"author_id"`
	Content     string       `json:"content" bson:"content"`
	ReplyTo     ID           `json:"reply_to,omitempty" bson:"reply_to,omitempty"`
	MentionIDs  []ID         `json:"mention_ids,omitempty" bson:"mention_ids,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty" bson:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at" bson:"created_at"`
}

type Attachment struct {
	ID       ID     `json:"id" bson:"_id"`
	Filename string `json:"filename" bson:"filename"`
	Size     int64  `json:"size" bson:"size"`
	URL      string `json:"url" bson:"url"`
}

type Reaction struct {
	ChannelID ID     `json:"channel_id" bson:"channel_id"`
	MessageID ID     `json:"message_id" bson:"message_id"`
	UserID    ID     `json:"user_id" bson:"user_id"`
	Emoji     string `json:"emoji" bson:"emoji"`
}

type NotificationKind int8

const (
	NotificationKindMention NotificationKind = iota
	NotificationKindReply
)

// Notification is the durable record behind mention/reply alerts. Writing it
// must succeed independently of whether any socket is connected; the fanout
// bus is never the source of truth for these.
type Notification struct {
	ID        ID               `json:"id" bson:"_id"`
	UserID    ID               `json:"user_id" bson:"user_id"`
	Kind      NotificationKind `json:"kind" bson:"kind"`
	MessageID ID               `json:"message_id" bson:"message_id"`
	ChannelID ID               `json:"channel_id" bson:"channel_id"`
	ActorID   ID               `json:"actor_id" bson:"actor_id"`
	CreatedAt time.Time        `json:"created_at" bson:"created_at"`
	Read      bool             `json:"read" bson:"read"`
}
