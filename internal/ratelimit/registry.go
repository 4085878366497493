package ratelimit

import (
	"slices"
	"sort"
	"sync"
)

// Registry binds resolver identities to their ordered policies. It is filled
// at startup, before the first request is served.
type Registry struct {
	mu       sync.RWMutex
	policies map[string][]Policy
}

func NewRegistry() *Registry {
	return &Registry{policies: make(map[string][]Policy)}
}

// Attach registers policies for resolver in evaluation order.
func (r *Registry) Attach(resolver string, policies ...Policy) error {
	if resolver == "" {
		return &ConfigurationError{Reason: "resolver identity is empty"}
	}
	seen := make(map[string]struct{}, len(policies))
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			if ce, ok := err.(*ConfigurationError); ok {
				ce.Resolver = resolver
			}
			return err
		}
		if _, dup := seen[p.Scope]; dup {
			return &ConfigurationError{Resolver: resolver, Scope: p.Scope, Reason: "scope attached twice"}
		}
		seen[p.Scope] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[resolver]; ok {
		return &ConfigurationError{Resolver: resolver, Reason: "policies already attached"}
	}
	r.policies[resolver] = append([]Policy(nil), policies...)
	return nil
}

// Policies returns a copy of the policies attached to resolver.
func (r *Registry) Policies(resolver string) []Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.policies[resolver])
}

func (r *Registry) Resolvers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.policies))
	for k := range r.policies {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
