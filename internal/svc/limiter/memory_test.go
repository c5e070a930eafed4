package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/wavechat/gateway/internal/testutil"
)

func TestFixedWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	inst := NewMemory(MemoryOptions{Now: func() time.Time { return now }})

	ctx := context.Background()

	const limit = 30

	window := time.Minute

	for i := 0; i < limit; i++ {
		res, err := inst.Test(ctx, "msg:1:100", limit, window)
		testutil.IsNil(t, err, "test")
		testutil.IsTrue(t, res.Allowed, "within the window")
		testutil.Assert(t, int64(limit-i-1), res.Remaining, "remaining counts down")
	}

	res, _ := inst.Test(ctx, "msg:1:100", limit, window)
	testutil.IsTrue(t, !res.Allowed, "31st hit rejected")
	testutil.Assert(t, int64(0), res.Remaining, "remaining clamps at zero")
	testutil.Assert(t, now.Add(window), res.ResetAt, "deterministic reset boundary")

	// Still rejected; remaining never goes negative.
	res, _ = inst.Test(ctx, "msg:1:100", limit, window)
	testutil.IsTrue(t, !res.Allowed, "still rejected")
	testutil.Assert(t, int64(0), res.Remaining, "remaining stays zero")

	// Separate buckets do not interfere.
	res, _ = inst.Test(ctx, "msg:1:200", limit, window)
	testutil.IsTrue(t, res.Allowed, "other bucket unaffected")

	now = now.Add(window)

	res, _ = inst.Test(ctx, "msg:1:100", limit, window)
	testutil.IsTrue(t, res.Allowed, "window reset on the boundary")
	testutil.Assert(t, int64(limit-1), res.Remaining, "fresh window count")
}
