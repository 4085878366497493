package gateway

import (
	"net/http"

	"github.com/AlexKimmel/GateQL/internal/ratelimit"
)

// Identify resolves the caller's throttling identity once per request and
// stores it in the context for the resolvers below.
func Identify(clientID func(*http.Request) string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := clientID(r)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := ratelimit.WithClient(r.Context(), ratelimit.ClientID(id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
