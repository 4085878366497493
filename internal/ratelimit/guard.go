package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// FailureMode decides what happens when the counter store cannot be reached.
type FailureMode int

const (
	// FailClosed rejects the call with a *StoreError.
	FailClosed FailureMode = iota
	// FailOpen lets the call through without counting it.
	FailOpen
)

func ParseFailureMode(s string) (FailureMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "closed":
		return FailClosed, nil
	case "open":
		return FailOpen, nil
	}
	return FailClosed, fmt.Errorf("unknown store failure mode %q", s)
}

func (m FailureMode) String() string {
	if m == FailOpen {
		return "open"
	}
	return "closed"
}

// Guard wraps resolver bodies with the policies registered for them.
type Guard struct {
	engine   *Engine
	registry *Registry
	mode     FailureMode
	logger   zerolog.Logger

	onThrottled  func(resolver, scope string)
	onStoreError func(resolver string)
	onAdmitted   func(resolver string)
}

type GuardOption func(*Guard)

func WithLogger(l zerolog.Logger) GuardOption {
	return func(g *Guard) { g.logger = l }
}

func WithFailureMode(m FailureMode) GuardOption {
	return func(g *Guard) { g.mode = m }
}

func OnThrottled(fn func(resolver, scope string)) GuardOption {
	return func(g *Guard) { g.onThrottled = fn }
}

func OnStoreError(fn func(resolver string)) GuardOption {
	return func(g *Guard) { g.onStoreError = fn }
}

func OnAdmitted(fn func(resolver string)) GuardOption {
	return func(g *Guard) { g.onAdmitted = fn }
}

func NewGuard(engine *Engine, registry *Registry, opts ...GuardOption) *Guard {
	g := &Guard{
		engine:   engine,
		registry: registry,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check admits one call of resolver by client, or returns a *ThrottledError
// naming the first policy in declared order that denies it. A denied call
// leaves every counter untouched.
func (g *Guard) Check(ctx context.Context, client ClientID, resolver string) error {
	policies := g.registry.Policies(resolver)
	if len(policies) == 0 {
		return nil
	}

	// read-only pass: clients that are already throttled never reach the write path
	for _, p := range policies {
		dec, err := g.engine.Decide(ctx, p, client, resolver)
		if err != nil {
			return g.storeFailed(resolver, client, err)
		}
		if !dec.Allowed {
			return g.throttled(resolver, client, dec)
		}
	}

	dec, err := g.engine.Admit(ctx, policies, client, resolver)
	if err != nil {
		return g.storeFailed(resolver, client, err)
	}
	if !dec.Allowed {
		return g.throttled(resolver, client, dec)
	}
	if g.onAdmitted != nil {
		g.onAdmitted(resolver)
	}
	return nil
}

// Do runs fn once Check admits the call. Errors from fn are returned as is.
func (g *Guard) Do(ctx context.Context, client ClientID, resolver string, fn func(context.Context) error) error {
	if err := g.Check(ctx, client, resolver); err != nil {
		return err
	}
	return fn(ctx)
}

// Resolve is Do for resolvers that produce a value.
func Resolve[T any](ctx context.Context, g *Guard, client ClientID, resolver string, fn func(context.Context) (T, error)) (T, error) {
	if err := g.Check(ctx, client, resolver); err != nil {
		var zero T
		return zero, err
	}
	return fn(ctx)
}

func (g *Guard) throttled(resolver string, client ClientID, dec Decision) error {
	if g.onThrottled != nil {
		g.onThrottled(resolver, dec.Policy.Scope)
	}
	g.logger.Debug().
		Str("resolver", resolver).
		Str("client", string(client)).
		Str("scope", dec.Policy.Scope).
		Dur("retry_after", dec.RetryAfter).
		Msg("throttled")
	return &ThrottledError{Resolver: resolver, Decision: dec}
}

func (g *Guard) storeFailed(resolver string, client ClientID, err error) error {
	if g.onStoreError != nil {
		g.onStoreError(resolver)
	}
	if g.mode == FailOpen {
		g.logger.Warn().Err(err).
			Str("resolver", resolver).
			Str("client", string(client)).
			Msg("throttle store failed, letting call through")
		return nil
	}
	g.logger.Error().Err(err).
		Str("resolver", resolver).
		Str("client", string(client)).
		Msg("throttle store failed, rejecting call")
	return err
}
