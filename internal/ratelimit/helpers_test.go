package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AlexKimmel/GateQL/internal/ratelimit"
	"github.com/AlexKimmel/GateQL/internal/ratelimit/memory"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: t0} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyStore wraps a memory store and fails the selected operations.
type flakyStore struct {
	*memory.Store
	failGet   bool
	failAdmit bool
	admits    atomic.Int64
}

func (f *flakyStore) Get(ctx context.Context, key ratelimit.Key, now time.Time) (ratelimit.Record, bool, error) {
	if f.failGet {
		return ratelimit.Record{}, false, context.DeadlineExceeded
	}
	return f.Store.Get(ctx, key, now)
}

func (f *flakyStore) Admit(ctx context.Context, limits []ratelimit.Limit, now time.Time) (ratelimit.Admission, error) {
	f.admits.Add(1)
	if f.failAdmit {
		return ratelimit.Admission{}, context.DeadlineExceeded
	}
	return f.Store.Admit(ctx, limits, now)
}
