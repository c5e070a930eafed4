package limiter

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int64
	resetAt time.Time
}

type memoryInst struct {
	mx      sync.Mutex
	now     func() time.Time
	buckets map[string]*window
}

type MemoryOptions struct {
	// Now overrides the clock source. Tests only.
	Now func() time.Time
}

// NewMemory returns a process-local fixed-window limiter.
func NewMemory(opt MemoryOptions) Instance {
	now := opt.Now
	if now == nil {
		now = time.Now
	}

	return &memoryInst{
		now:     now,
		buckets: map[string]*window{},
	}
}

func (inst *memoryInst) Test(_ context.Context, bucket string, limit int64, dur time.Duration) (Result, error) {
	inst.mx.Lock()
	defer inst.mx.Unlock()

	now := inst.now()

	w, ok := inst.buckets[bucket]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(dur)}
		inst.buckets[bucket] = w
	}

	w.count++

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   w.count <= limit,
		Remaining: remaining,
		ResetAt:   w.resetAt,
	}, nil
}
