package auth

import (
	"context"
	"net"
	"net/http"
	"slices"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

type ctxKey int

const (
	keyID ctxKey = iota
	keyRoles
)

// RoleAdmin unlocks the admin-only fields of the graph API.
const RoleAdmin = "admin"

// PermissionError is returned by resolvers the caller's key may not use.
type PermissionError struct{}

func (*PermissionError) Error() string { return "You do not have permission to perform this action." }

// Store is a static in-memory key store: secret -> keyID
type Store struct {
	header    string
	bySecret  map[string]string
	roles     map[string][]string // keyID -> roles
	anonymous bool
	trustXFF  bool
}

type Option func(*Store)

// AllowAnonymous lets requests without a key through; they are throttled
// by source address instead of key id.
func AllowAnonymous(allow bool) Option {
	return func(s *Store) { s.anonymous = allow }
}

// WithRoles grants roles per key id.
func WithRoles(roles map[string][]string) Option {
	return func(s *Store) { s.roles = roles }
}

// TrustForwardedFor takes the anonymous source address from X-Forwarded-For.
func TrustForwardedFor(trust bool) Option {
	return func(s *Store) { s.trustXFF = trust }
}

// NewStatic creates a new static key store.
// header: HTTP header to read the key from (e.g., "X-API-Key")
// pairs: map of secret -> keyID
func NewStatic(header string, pairs map[string]string, opts ...Option) *Store {
	h := header
	if h == "" {
		h = "X-API-Key"
	}
	s := &Store{header: h, bySecret: pairs}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) keyIDFor(secret string) (string, bool) {
	id, ok := s.bySecret[secret]
	return id, ok
}

// WithKeyID injects the key ID into context.
func WithKeyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyID, id)
}

// KeyIDFrom extracts the key ID from context (if present).
func KeyIDFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(keyID)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithRoleSet injects the caller's roles into context.
func WithRoleSet(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, keyRoles, roles)
}

// HasRole reports whether the authenticated caller holds role.
func HasRole(ctx context.Context, role string) bool {
	roles, _ := ctx.Value(keyRoles).([]string)
	return slices.Contains(roles, role)
}

// ClientID derives the throttling identity of r: "key:<id>" for
// authenticated requests, "ip:<source address>" otherwise.
func (s *Store) ClientID(r *http.Request) string {
	if id, ok := KeyIDFrom(r.Context()); ok && id != "" {
		return "key:" + id
	}
	return "ip:" + s.sourceAddr(r)
}

func (s *Store) sourceAddr(r *http.Request) string {
	if s.trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// Middleware validates the API key and writes JSON errors on failure.
// It skips authentication for any path in skipPaths.
func (s *Store) Middleware(skipPaths map[string]struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hname := s.header

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skipPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			secret := strings.TrimSpace(r.Header.Get(hname))
			if secret == "" {
				if s.anonymous {
					next.ServeHTTP(w, r)
					return
				}
				writeJSON(w, http.StatusUnauthorized, "Provide API key in "+hname)
				return
			}
			id, ok := s.keyIDFor(secret)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, "API key not recognized")
				return
			}
			ctx := WithKeyID(r.Context(), id)
			if roles := s.roles[id]; len(roles) > 0 {
				ctx = WithRoleSet(ctx, roles)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type errorBody struct {
	Errors []errorEntry `json:"errors"`
}

type errorEntry struct {
	Message string `json:"message"`
}

// errors use the graph API's envelope so clients parse a single shape
func writeJSON(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(errorBody{Errors: []errorEntry{{Message: msg}}})
}
