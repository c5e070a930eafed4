package store

import (
	"context"

	"github.com/wavechat/gateway/internal/structures"
)

// Instance is the durable store collaborator. The gateway only consumes it:
// CRUD ownership of guilds, channels, messages and notifications lives with
// the platform's persistence services.
type Instance interface {
	UserByID(ctx context.Context, id structures.ID) (structures.User, error)
	ChannelByID(ctx context.Context, id structures.ID) (structures.Channel, error)
	GuildByID(ctx context.Context, id structures.ID) (structures.Guild, error)

	MemberOf(ctx context.Context, guildID, userID structures.ID) (structures.Member, error)
	// RolesOfMember returns the member's roles sorted ascending by position.
	RolesOfMember(ctx context.Context, guildID, userID structures.ID) ([]structures.Role, error)

	// GuildsOfUser and DMChannelsOfUser drive room subscriptions at identify
	// time.
	GuildsOfUser(ctx context.Context, userID structures.ID) ([]structures.ID, error)
	DMChannelsOfUser(ctx context.Context, userID structures.ID) ([]structures.ID, error)

	MessageByID(ctx context.Context, channelID, messageID structures.ID) (structures.Message, error)
	CreateMessage(ctx context.Context, msg structures.Message) error
	CreateReaction(ctx context.Context, reaction structures.Reaction) error

	// CreateNotification writes the durable record behind a mention or reply.
	// It must succeed independently of socket connectivity.
	CreateNotification(ctx context.Context, n structures.Notification) error
}
