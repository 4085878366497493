package ratelimit

import (
	"context"
	"time"
)

// Decision is the per-call verdict of the engine. It is never persisted.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // zero when allowed
	Policy     Policy        // the denying policy
}

// Seconds is RetryAfter rounded up to whole seconds.
func (d Decision) Seconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int((d.RetryAfter + time.Second - 1) / time.Second)
}

// Engine implements the fixed window algorithm on top of a Store.
type Engine struct {
	store Store
	now   func() time.Time
}

type EngineOption func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide reports whether one more call fits into policy without recording it.
func (e *Engine) Decide(ctx context.Context, p Policy, client ClientID, resolver string) (Decision, error) {
	now := e.now()
	rec, ok, err := e.store.Get(ctx, Key{Scope: p.Scope, Client: client, Resolver: resolver}, now)
	if err != nil {
		return Decision{}, &StoreError{Op: "get", Err: err}
	}
	if !ok || rec.Expired(now) || rec.Count < p.Rate {
		return Decision{Allowed: true}, nil
	}
	return deny(p, rec, now), nil
}

// Admit checks and records one call against every policy at once. Either
// all counters move or none does.
func (e *Engine) Admit(ctx context.Context, policies []Policy, client ClientID, resolver string) (Decision, error) {
	if len(policies) == 0 {
		return Decision{Allowed: true}, nil
	}
	limits := make([]Limit, len(policies))
	for i, p := range policies {
		limits[i] = Limit{
			Key:    Key{Scope: p.Scope, Client: client, Resolver: resolver},
			Rate:   p.Rate,
			Window: p.Window,
		}
	}

	now := e.now()
	adm, err := e.store.Admit(ctx, limits, now)
	if err != nil {
		return Decision{}, &StoreError{Op: "admit", Err: err}
	}
	if adm.Allowed {
		return Decision{Allowed: true}, nil
	}
	return deny(policies[adm.Denied], adm.Record, now), nil
}

func deny(p Policy, rec Record, now time.Time) Decision {
	window := rec.Window
	if window <= 0 {
		window = p.Window
	}
	wait := rec.Start.Add(window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	if wait > window {
		wait = window
	}
	return Decision{Allowed: false, RetryAfter: wait, Policy: p}
}
