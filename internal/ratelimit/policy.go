package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Policy caps how many times one client may call one resolver within a
// fixed window. Policies are built once at startup and never mutated.
type Policy struct {
	Scope  string
	Rate   int // calls allowed per window
	Window time.Duration
}

// NewPolicy returns a validated policy.
func NewPolicy(scope string, rate int, window time.Duration) (Policy, error) {
	p := Policy{Scope: scope, Rate: rate, Window: window}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// ParsePolicy builds a policy from a rate string such as "1/day" or "30/90s".
func ParsePolicy(scope, rate string) (Policy, error) {
	n, window, err := ParseRate(rate)
	if err != nil {
		return Policy{}, &ConfigurationError{Scope: scope, Reason: err.Error()}
	}
	return NewPolicy(scope, n, window)
}

func (p Policy) Validate() error {
	switch {
	case strings.TrimSpace(p.Scope) == "":
		return &ConfigurationError{Reason: "policy scope is empty"}
	case p.Rate <= 0:
		return &ConfigurationError{Scope: p.Scope, Reason: fmt.Sprintf("rate must be >= 1, got %d", p.Rate)}
	case p.Window <= 0:
		return &ConfigurationError{Scope: p.Scope, Reason: fmt.Sprintf("window must be > 0, got %s", p.Window)}
	}
	return nil
}

func (p Policy) String() string {
	return p.Scope + "=" + strconv.Itoa(p.Rate) + "/" + p.Window.String()
}

// ParseRate parses "N/period". The period is either a unit word where only
// the first letter counts (s, m, h, d) or a Go duration.
func ParseRate(rate string) (int, time.Duration, error) {
	num, period, ok := strings.Cut(strings.TrimSpace(rate), "/")
	if !ok {
		return 0, 0, fmt.Errorf("rate %q: expected N/period", rate)
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return 0, 0, fmt.Errorf("rate %q: invalid count: %w", rate, err)
	}
	period = strings.ToLower(strings.TrimSpace(period))
	if period == "" {
		return 0, 0, fmt.Errorf("rate %q: empty period", rate)
	}

	if isWord(period) {
		switch period[0] {
		case 's':
			return n, time.Second, nil
		case 'm':
			return n, time.Minute, nil
		case 'h':
			return n, time.Hour, nil
		case 'd':
			return n, 24 * time.Hour, nil
		}
		return 0, 0, fmt.Errorf("rate %q: unknown period %q", rate, period)
	}

	d, err := time.ParseDuration(period)
	if err != nil {
		return 0, 0, fmt.Errorf("rate %q: invalid period: %w", rate, err)
	}
	return n, d, nil
}

func isWord(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
