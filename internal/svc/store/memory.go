package store

import (
	"context"
	"sort"
	"sync"

	"github.com/wavechat/gateway/internal/errors"
	"github.com/wavechat/gateway/internal/structures"
)

// Memory is a map-backed store used by tests and local development. Exported
// fields allow fixtures to be seeded directly.
type Memory struct {
	mx sync.RWMutex

	Users         map[structures.ID]structures.User
	Guilds        map[structures.ID]structures.Guild
	Channels      map[structures.ID]structures.Channel
	Members       map[structures.ID][]structures.Member // by guild
	Roles         map[structures.ID][]structures.Role   // by guild
	Messages      map[structures.ID]structures.Message
	Reactions     []structures.Reaction
	Notifications []structures.Notification
}

func NewMemory() *Memory {
	return &Memory{
		Users:    map[structures.ID]structures.User{},
		Guilds:   map[structures.ID]structures.Guild{},
		Channels: map[structures.ID]structures.Channel{},
		Members:  map[structures.ID][]structures.Member{},
		Roles:    map[structures.ID][]structures.Role{},
		Messages: map[structures.ID]structures.Message{},
	}
}

func (s *Memory) UserByID(_ context.Context, id structures.ID) (structures.User, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	user, ok := s.Users[id]
	if !ok {
		return user, errors.ErrUnknownUser
	}

	return user, nil
}

func (s *Memory) ChannelByID(_ context.Context, id structures.ID) (structures.Channel, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	channel, ok := s.Channels[id]
	if !ok {
		return channel, errors.ErrUnknownChannel
	}

	return channel, nil
}

func (s *Memory) GuildByID(_ context.Context, id structures.ID) (structures.Guild, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	guild, ok := s.Guilds[id]
	if !ok {
		return guild, errors.ErrUnknownGuild
	}

	return guild, nil
}

func (s *Memory) MemberOf(_ context.Context, guildID, userID structures.ID) (structures.Member, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	for _, m := range s.Members[guildID] {
		if m.UserID == userID {
			return m, nil
		}
	}

	return structures.Member{}, errors.ErrAccessDenied
}

func (s *Memory) RolesOfMember(ctx context.Context, guildID, userID structures.ID) ([]structures.Role, error) {
	member, err := s.MemberOf(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}

	s.mx.RLock()
	defer s.mx.RUnlock()

	owned := map[structures.ID]bool{}
	for _, id := range member.RoleIDs {
		owned[id] = true
	}

	var roles []structures.Role

	for _, r := range s.Roles[guildID] {
		if owned[r.ID] {
			roles = append(roles, r)
		}
	}

	sort.Slice(roles, func(i, j int) bool { return roles[i].Position < roles[j].Position })

	return roles, nil
}

func (s *Memory) GuildsOfUser(_ context.Context, userID structures.ID) ([]structures.ID, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	var ids []structures.ID

	for guildID, members := range s.Members {
		for _, m := range members {
			if m.UserID == userID {
				ids = append(ids, guildID)
				break
			}
		}
	}

	return ids, nil
}

func (s *Memory) DMChannelsOfUser(_ context.Context, userID structures.ID) ([]structures.ID, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	var ids []structures.ID

	for _, c := range s.Channels {
		if c.Type != structures.ChannelTypeDM && c.Type != structures.ChannelTypeGroupDM {
			continue
		}

		for _, rid := range c.RecipientIDs {
			if rid == userID {
				ids = append(ids, c.ID)
				break
			}
		}
	}

	return ids, nil
}

func (s *Memory) MessageByID(_ context.Context, channelID, messageID structures.ID) (structures.Message, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	msg, ok := s.Messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return structures.Message{}, errors.ErrUnknownMessage
	}

	return msg, nil
}

func (s *Memory) CreateMessage(_ context.Context, msg structures.Message) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.Messages[msg.ID] = msg

	return nil
}

func (s *Memory) CreateReaction(_ context.Context, reaction structures.Reaction) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.Reactions = append(s.Reactions, reaction)

	return nil
}

func (s *Memory) CreateNotification(_ context.Context, n structures.Notification) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.Notifications = append(s.Notifications, n)

	return nil
}
