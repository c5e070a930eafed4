package structures

import (
	"testing"

	"github.com/wavechat/gateway/internal/testutil"
)

func TestPermissionPrimitives(t *testing.T) {
	p := PermissionViewChannel | PermissionSendMessages

	testutil.IsTrue(t, p.Has(PermissionViewChannel), "has single bit")
	testutil.IsTrue(t, p.Has(PermissionViewChannel|PermissionSendMessages), "has all bits")
	testutil.IsTrue(t, !p.Has(PermissionManageMessages), "missing bit")
	testutil.IsTrue(t, p.HasAny(PermissionManageMessages|PermissionSendMessages), "any matches one")
	testutil.IsTrue(t, !p.HasAny(PermissionManageMessages|PermissionBanMembers), "any matches none")

	p = p.Add(PermissionAddReactions)
	testutil.IsTrue(t, p.Has(PermissionAddReactions), "add")

	p = p.Remove(PermissionSendMessages)
	testutil.IsTrue(t, !p.Has(PermissionSendMessages), "remove")

	p = p.Toggle(PermissionSendMessages)
	testutil.IsTrue(t, p.Has(PermissionSendMessages), "toggle on")

	p = p.Toggle(PermissionSendMessages)
	testutil.IsTrue(t, !p.Has(PermissionSendMessages), "toggle off")
}

func TestEffectivePermissionsNoOverwrites(t *testing.T) {
	base := PermissionSendMessages | PermissionViewChannel

	testutil.Assert(t, base, EffectivePermissions(base, nil), "empty overwrites are identity")
}

func TestEffectivePermissionsLaterOverwriteWins(t *testing.T) {
	base := PermissionSendMessages | PermissionViewChannel

	result := EffectivePermissions(base, []Overwrite{
		{Deny: PermissionSendMessages},
		{Allow: PermissionSendMessages},
	})

	testutil.IsTrue(t, result.Has(PermissionSendMessages), "later allow overrides earlier deny")

	result = EffectivePermissions(base, []Overwrite{
		{Allow: PermissionSendMessages},
		{Deny: PermissionSendMessages},
	})

	testutil.IsTrue(t, !result.Has(PermissionSendMessages), "later deny overrides earlier allow")
	testutil.IsTrue(t, result.Has(PermissionViewChannel), "unrelated bits untouched")
}

func TestEffectivePermissionsAdministratorBypass(t *testing.T) {
	result := EffectivePermissions(PermissionAdministrator, []Overwrite{
		{Deny: PermissionAll},
	})

	testutil.Assert(t, PermissionAll, result, "administrator ignores overwrites")
}

func TestActivityCapabilitiesAreDistinct(t *testing.T) {
	testutil.IsTrue(t,
		PermissionUseEmbeddedActivities != PermissionStartEmbeddedActivities,
		"use and start occupy different bits",
	)
}
