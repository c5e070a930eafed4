package store

import (
	"context"
	"sort"

	"github.com/wavechat/gateway/internal/errors"
	"github.com/wavechat/gateway/internal/structures"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionUsers         = "users"
	collectionGuilds        = "guilds"
	collectionChannels      = "channels"
	collectionMembers       = "members"
	collectionRoles         = "roles"
	collectionMessages      = "messages"
	collectionReactions     = "reactions"
	collectionNotifications = "notifications"
)

type mongoInst struct {
	db *mongo.Database
}

type MongoOptions struct {
	URI      string
	Database string
	Username string
	Password string
}

func SetupMongo(ctx context.Context, opt MongoOptions) (Instance, error) {
	clientOpts := options.Client().ApplyURI(opt.URI)
	if opt.Username != "" {
		clientOpts = clientOpts.SetAuth(options.Credential{
			Username: opt.Username,
			Password: opt.Password,
		})
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	return &mongoInst{db: client.Database(opt.Database)}, nil
}

func (s *mongoInst) UserByID(ctx context.Context, id structures.ID) (structures.User, error) {
	var user structures.User

	err := s.db.Collection(collectionUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return user, errors.ErrUnknownUser
	}

	return user, err
}

func (s *mongoInst) ChannelByID(ctx context.Context, id structures.ID) (structures.Channel, error) {
	var channel structures.Channel

	err := s.db.Collection(collectionChannels).FindOne(ctx, bson.M{"_id": id}).Decode(&channel)
	if err == mongo.ErrNoDocuments {
		return channel, errors.ErrUnknownChannel
	}

	return channel, err
}

func (s *mongoInst) GuildByID(ctx context.Context, id structures.ID) (structures.Guild, error) {
	var guild structures.Guild

	err := s.db.Collection(collectionGuilds).FindOne(ctx, bson.M{"_id": id}).Decode(&guild)
	if err == mongo.ErrNoDocuments {
		return guild, errors.ErrUnknownGuild
	}

	return guild, err
}

func (s *mongoInst) MemberOf(ctx context.Context, guildID, userID structures.ID) (structures.Member, error) {
	var member structures.Member

	err := s.db.Collection(collectionMembers).FindOne(ctx, bson.M{
		"guild_id": guildID,
		"user_id":  userID,
	}).Decode(&member)
	if err == mongo.ErrNoDocuments {
		return member, errors.ErrAccessDenied
	}

	return member, err
}

func (s *mongoInst) RolesOfMember(ctx context.Context, guildID, userID structures.ID) ([]structures.Role, error) {
	member, err := s.MemberOf(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}

	if len(member.RoleIDs) == 0 {
		return []structures.Role{}, nil
	}

	cur, err := s.db.Collection(collectionRoles).Find(ctx, bson.M{
		"guild_id": guildID,
		"_id":      bson.M{"$in": member.RoleIDs},
	})
	if err != nil {
		return nil, err
	}

	var roles []structures.Role
	if err := cur.All(ctx, &roles); err != nil {
		return nil, err
	}

	sort.Slice(roles, func(i, j int) bool { return roles[i].Position < roles[j].Position })

	return roles, nil
}

func (s *mongoInst) GuildsOfUser(ctx context.Context, userID structures.ID) ([]structures.ID, error) {
	cur, err := s.db.Collection(collectionMembers).Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}

	var members []structures.Member
	if err := cur.All(ctx, &members); err != nil {
		return nil, err
	}

	ids := make([]structures.ID, len(members))
	for i, m := range members {
		ids[i] = m.GuildID
	}

	return ids, nil
}

func (s *mongoInst) DMChannelsOfUser(ctx context.Context, userID structures.ID) ([]structures.ID, error) {
	cur, err := s.db.Collection(collectionChannels).Find(ctx, bson.M{
		"type":          bson.M{"$in": []structures.ChannelType{structures.ChannelTypeDM, structures.ChannelTypeGroupDM}},
		"recipient_ids": userID,
	})
	if err != nil {
		return nil, err
	}

	var channels []structures.Channel
	if err := cur.All(ctx, &channels); err != nil {
		return nil, err
	}

	ids := make([]structures.ID, len(channels))
	for i, c := range channels {
		ids[i] = c.ID
	}

	return ids, nil
}

func (s *mongoInst) MessageByID(ctx context.Context, channelID, messageID structures.ID) (structures.Message, error) {
	var msg structures.Message

	err := s.db.Collection(collectionMessages).FindOne(ctx, bson.M{
		"_id":        messageID,
		"channel_id": channelID,
	}).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return msg, errors.ErrUnknownMessage
	}

	return msg, err
}

func (s *mongoInst) CreateMessage(ctx context.Context, msg structures.Message) error {
	_, err := s.db.Collection(collectionMessages).InsertOne(ctx, msg)

	return err
}

func (s *mongoInst) CreateReaction(ctx context.Context, reaction structures.Reaction) error {
	_, err := s.db.Collection(collectionReactions).UpdateOne(ctx,
		bson.M{
			"channel_id": reaction.ChannelID,
			"message_id": reaction.MessageID,
			"user_id":    reaction.UserID,
			"emoji":      reaction.Emoji,
		},
		bson.M{"$set": reaction},
		options.Update().SetUpsert(true),
	)

	return err
}

func (s *mongoInst) CreateNotification(ctx context.Context, n structures.Notification) error {
	_, err := s.db.Collection(collectionNotifications).InsertOne(ctx, n)

	return err
}
