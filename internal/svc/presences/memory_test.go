package presences

import (
	"context"
	"testing"
	"time"

	"github.com/wavechat/gateway/internal/structures"
	"github.com/wavechat/gateway/internal/testutil"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestRegistry() (*fakeClock, Instance) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}

	return clock, NewMemory(MemoryOptions{Now: clock.Now})
}

func TestOnlineCountExcludesOffline(t *testing.T) {
	_, reg := newTestRegistry()
	ctx := context.Background()

	testutil.IsNil(t, reg.SetPresence(ctx, 1, structures.PresenceStatusOnline, ""), "set online")
	testutil.IsNil(t, reg.SetPresence(ctx, 2, structures.PresenceStatusIdle, "brb"), "set idle")

	n, err := reg.OnlineCount(ctx)
	testutil.IsNil(t, err, "count")
	testutil.Assert(t, int64(2), n, "two users online")

	testutil.IsNil(t, reg.SetPresence(ctx, 1, structures.PresenceStatusOffline, ""), "set offline")

	n, _ = reg.OnlineCount(ctx)
	testutil.Assert(t, int64(1), n, "offline user excluded")
}

func TestOnlineCountPrunesExpired(t *testing.T) {
	clock, reg := newTestRegistry()
	ctx := context.Background()

	_ = reg.SetPresence(ctx, 1, structures.PresenceStatusOnline, "")

	clock.Advance(PresenceTTL + time.Second)

	// No explicit removal ran; the count itself self-heals.
	n, err := reg.OnlineCount(ctx)
	testutil.IsNil(t, err, "count")
	testutil.Assert(t, int64(0), n, "expired entry pruned")
}

func TestGetPresenceExpired(t *testing.T) {
	clock, reg := newTestRegistry()
	ctx := context.Background()

	_ = reg.SetPresence(ctx, 1, structures.PresenceStatusDND, "")

	rec, ok, err := reg.GetPresence(ctx, 1)
	testutil.IsNil(t, err, "get")
	testutil.IsTrue(t, ok, "fresh record present")
	testutil.Assert(t, structures.PresenceStatusDND, rec.Status, "status round-trips")

	clock.Advance(PresenceTTL + time.Minute)

	_, ok, _ = reg.GetPresence(ctx, 1)
	testutil.IsTrue(t, !ok, "expired record reads as unknown")

	all, err := reg.GetPresences(ctx, []structures.ID{1, 2})
	testutil.IsNil(t, err, "batched read")
	testutil.Assert(t, 0, len(all), "expired and absent entries omitted")
}

func TestTypingFilterIsReadTime(t *testing.T) {
	clock, reg := newTestRegistry()
	ctx := context.Background()

	_ = reg.MarkTyping(ctx, 100, 1)

	clock.Advance(3 * time.Second)
	_ = reg.MarkTyping(ctx, 100, 2)

	marks, err := reg.TypingUsers(ctx, 100)
	testutil.IsNil(t, err, "read")
	testutil.Assert(t, 2, len(marks), "both marks fresh")

	clock.Advance(8 * time.Second)

	// User 1's mark is now 11s old, user 2's is 8s old; nothing was deleted.
	marks, _ = reg.TypingUsers(ctx, 100)
	testutil.Assert(t, 1, len(marks), "stale mark filtered at read time")
	testutil.Assert(t, structures.ID(2), marks[0].UserID, "fresh mark survives")
}

func TestSocketRegistrationLastUnregister(t *testing.T) {
	_, reg := newTestRegistry()
	ctx := context.Background()

	testutil.IsNil(t, reg.RegisterSocket(ctx, 1, "sess-a", "10"), "register first")
	testutil.IsNil(t, reg.RegisterSocket(ctx, 1, "sess-b", "11"), "register second")

	ok, _ := reg.HasAnySocket(ctx, 1)
	testutil.IsTrue(t, ok, "sockets present")

	sockets, _ := reg.SocketsOf(ctx, 1)
	testutil.Assert(t, 2, len(sockets), "two sockets recorded")

	last, err := reg.UnregisterSocket(ctx, 1, "sess-a", "10")
	testutil.IsNil(t, err, "first unregister")
	testutil.IsTrue(t, !last, "not the last socket")

	last, _ = reg.UnregisterSocket(ctx, 1, "sess-b", "11")
	testutil.IsTrue(t, last, "last socket reported")

	ok, _ = reg.HasAnySocket(ctx, 1)
	testutil.IsTrue(t, !ok, "no sockets remain")
}
