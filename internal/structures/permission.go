package structures

// Permission is a 64-bit capability bitfield. A member's base permissions are
// the OR of all their role permissions; channel overwrites are folded on top
// of the base by EffectivePermissions.
type Permission uint64

const (
	PermissionViewChannel Permission = 1 << iota
	PermissionSendMessages
	PermissionManageMessages
	PermissionEmbedLinks
	PermissionAttachFiles
	PermissionAddReactions
	PermissionMentionEveryone
	PermissionManageChannels
	PermissionManageRoles
	PermissionKickMembers
	PermissionBanMembers
	PermissionCreateInvites
	PermissionChangeNickname
	PermissionManageNicknames

	// Voice
	PermissionVoiceConnect
	PermissionVoiceSpeak
	PermissionVoiceVideo
	PermissionVoiceMuteMembers
	PermissionVoiceDeafenMembers
	PermissionVoiceMoveMembers

	// Activities use and start are distinct capabilities with distinct bits.
	PermissionUseEmbeddedActivities
	PermissionStartEmbeddedActivities

	PermissionAdministrator
)

// PermissionAll is the full permission superset granted to owners and
// administrators.
const PermissionAll = Permission(1<<63 - 1)

func (p Permission) Has(bits Permission) bool {
	return p&bits == bits
}

func (p Permission) HasAny(bits Permission) bool {
	return p&bits != 0
}

func (p Permission) HasAll(bits Permission) bool {
	return p.Has(bits)
}

func (p Permission) Add(bits Permission) Permission {
	return p | bits
}

func (p Permission) Remove(bits Permission) Permission {
	return p &^ bits
}

func (p Permission) Toggle(bits Permission) Permission {
	return p ^ bits
}

// OverwriteTargetKind discriminates what an overwrite applies to.
type OverwriteTargetKind int8

const (
	OverwriteTargetRole OverwriteTargetKind = iota
	OverwriteTargetMember
)

// Overwrite is a channel-scoped allow/deny delta applied on top of
// role-derived base permissions.
type Overwrite struct {
	TargetID   ID                  `json:"target_id" bson:"target_id"`
	TargetKind OverwriteTargetKind `json:"target_kind" bson:"target_kind"`
	Allow      Permission          `json:"allow" bson:"allow"`
	Deny       Permission          `json:"deny" bson:"deny"`
}

// EffectivePermissions folds channel overwrites onto a member's base
// permissions. Overwrites must be supplied ordered from least to most
// specific (everyone role, then other roles, then the member-specific
// overwrite); later overwrites win ties. An administrator base bypasses
// overwrites entirely.
func EffectivePermissions(base Permission, overwrites []Overwrite) Permission {
	if base.Has(PermissionAdministrator) {
		return PermissionAll
	}

	current := base
	for _, ow := range overwrites {
		current = current.Remove(ow.Deny).Add(ow.Allow)
	}

	return current
}
