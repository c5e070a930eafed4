package gateway

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/wavechat/gateway/internal/structures"
)

// dmPermissions is what a DM recipient can do; there are no roles or
// overwrites in direct channels.
const dmPermissions = structures.PermissionViewChannel |
	structures.PermissionSendMessages |
	structures.PermissionEmbedLinks |
	structures.PermissionAttachFiles |
	structures.PermissionAddReactions |
	structures.PermissionVoiceConnect |
	structures.PermissionVoiceSpeak |
	structures.PermissionVoiceVideo

const permCacheTTL = 30 * time.Second

func newPermCache() *cache.Cache {
	return cache.New(permCacheTTL, time.Minute)
}

// channel fetches a channel through the per-instance cache.
func (s *Server) channel(ctx context.Context, id structures.ID) (structures.Channel, error) {
	key := "channel:" + id.String()

	if v, ok := s.cache.Get(key); ok {
		return v.(structures.Channel), nil
	}

	ch, err := s.gCtx.Inst().Store.ChannelByID(ctx, id)
	if err != nil {
		return ch, err
	}

	s.cache.SetDefault(key, ch)

	return ch, nil
}

// channelPermissions resolves the user's effective permissions in a channel:
// role-derived base, then overwrites folded least to most specific (everyone
// role, member's roles by position, member-specific).
func (s *Server) channelPermissions(ctx context.Context, userID structures.ID, ch structures.Channel) (structures.Permission, error) {
	if ch.GuildID.IsNil() {
		for _, rid := range ch.RecipientIDs {
			if rid == userID {
				return dmPermissions, nil
			}
		}

		return 0, nil
	}

	key := "perm:" + userID.String() + ":" + ch.ID.String()

	if v, ok := s.cache.Get(key); ok {
		return v.(structures.Permission), nil
	}

	inst := s.gCtx.Inst()

	guild, err := inst.Store.GuildByID(ctx, ch.GuildID)
	if err != nil {
		return 0, err
	}

	if guild.OwnerID == userID {
		s.cache.SetDefault(key, structures.PermissionAll)

		return structures.PermissionAll, nil
	}

	roles, err := inst.Store.RolesOfMember(ctx, ch.GuildID, userID)
	if err != nil {
		return 0, err
	}

	var base structures.Permission
	for _, r := range roles {
		base = base.Add(r.Permissions)
	}

	perms := structures.EffectivePermissions(base, orderedOverwrites(ch, ch.GuildID, userID, roles))

	s.cache.SetDefault(key, perms)

	return perms, nil
}

// orderedOverwrites selects the overwrites that apply to the member and
// returns them least to most specific. The everyone role shares the guild's
// id.
func orderedOverwrites(ch structures.Channel, guildID, userID structures.ID, roles []structures.Role) []structures.Overwrite {
	var (
		everyone []structures.Overwrite
		byRole   []structures.Overwrite
		member   []structures.Overwrite
	)

	roleIDs := map[structures.ID]bool{}
	for _, r := range roles {
		roleIDs[r.ID] = true
	}

	for _, ow := range ch.Overwrites {
		switch ow.TargetKind {
		case structures.OverwriteTargetRole:
			if ow.TargetID == guildID {
				everyone = append(everyone, ow)
			} else if roleIDs[ow.TargetID] {
				byRole = append(byRole, ow)
			}
		case structures.OverwriteTargetMember:
			if ow.TargetID == userID {
				member = append(member, ow)
			}
		}
	}

	ordered := make([]structures.Overwrite, 0, len(everyone)+len(byRole)+len(member))
	ordered = append(ordered, everyone...)
	ordered = append(ordered, byRole...)
	ordered = append(ordered, member...)

	return ordered
}
