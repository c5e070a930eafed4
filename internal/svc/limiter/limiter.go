package limiter

import (
	"context"
	"time"
)

// Instance is the fixed-window rate limit primitive. Buckets are arbitrary
// caller-composed keys (per user per channel for message sends).
type Instance interface {
	// Test counts one hit against the bucket and reports whether it fits the
	// window. Remaining never goes negative; ResetAt is the window boundary.
	Test(ctx context.Context, bucket string, limit int64, window time.Duration) (Result, error)
}

type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}
