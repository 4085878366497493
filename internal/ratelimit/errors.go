package ratelimit

import (
	"errors"
	"fmt"
)

var (
	ErrThrottled        = errors.New("request was throttled")
	ErrStoreUnavailable = errors.New("throttle counter store unavailable")
)

// ThrottledError is returned when a policy denies a call. It is the only
// error the throttling layer manufactures for a healthy store.
type ThrottledError struct {
	Resolver string
	Decision Decision
}

func (e *ThrottledError) Error() string { return ThrottledMessage(e.Decision) }

func (e *ThrottledError) Is(target error) bool { return target == ErrThrottled }

// ConfigurationError reports an invalid policy definition. It is raised at
// registration time so that a misconfigured resolver is never served.
type ConfigurationError struct {
	Resolver string
	Scope    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Resolver != "" && e.Scope != "":
		return fmt.Sprintf("throttle config: resolver %q scope %q: %s", e.Resolver, e.Scope, e.Reason)
	case e.Resolver != "":
		return fmt.Sprintf("throttle config: resolver %q: %s", e.Resolver, e.Reason)
	case e.Scope != "":
		return fmt.Sprintf("throttle config: scope %q: %s", e.Scope, e.Reason)
	}
	return "throttle config: " + e.Reason
}

// StoreError wraps a counter store failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "throttle store " + e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

func IsThrottled(err error) bool { return errors.Is(err, ErrThrottled) }
