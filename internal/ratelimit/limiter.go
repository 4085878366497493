package ratelimit

import (
	"context"
	"time"
)

// Record is the counter state of one key within its current window.
type Record struct {
	Count  int
	Start  time.Time
	Window time.Duration
}

// End is the instant the window closes.
func (r Record) End() time.Time { return r.Start.Add(r.Window) }

// Expired reports whether the window has elapsed at now.
func (r Record) Expired(now time.Time) bool { return !now.Before(r.End()) }

// Limit is one policy bound to its key, as handed to Store.Admit.
type Limit struct {
	Key    Key
	Rate   int
	Window time.Duration
}

// Admission is the outcome of Store.Admit. When Allowed is false, Denied is
// the index of the first limit whose counter is exhausted and Record is that
// counter's state. Nothing was written in that case.
type Admission struct {
	Allowed bool
	Denied  int
	Record  Record
}

// Store keeps invocation counts with expiry. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the live record for key. Expired records are reported as absent.
	Get(ctx context.Context, key Key, now time.Time) (Record, bool, error)
	// Increment adds one call to key, starting a fresh window when the record
	// is absent or expired, and returns the new count.
	Increment(ctx context.Context, key Key, window time.Duration, now time.Time) (int, error)
	// Admit checks every limit in order and, only if all have room, increments
	// all of them. Check and increment happen as one atomic step.
	Admit(ctx context.Context, limits []Limit, now time.Time) (Admission, error)
	Close() error
}
