package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/AlexKimmel/GateQL/internal/ratelimit"
)

// EndpointResolver is the identity under which endpoint-wide policies are
// attached. It is checked once per HTTP request, before any field resolves.
const EndpointResolver = "Endpoint.graphql"

func RateLimit(guard *ratelimit.Guard, resolver string, skipPaths map[string]struct{}) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// allow ops endpoints without limits
			if _, ok := skipPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			client, ok := ratelimit.ClientFrom(r.Context())
			if !ok || client == "" {
				client = "anon"
			}

			err := guard.Check(r.Context(), client, resolver)
			var te *ratelimit.ThrottledError
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.As(err, &te):
				w.Header().Set("Retry-After", strconv.Itoa(te.Decision.Seconds()))
				writeErrors(w, http.StatusTooManyRequests, ratelimit.Format(te.Decision, nil, nil))
			default:
				writeErrors(w, http.StatusInternalServerError, ratelimit.ErrorEnvelope{Message: storeFailureMessage})
			}
		})
	}
}
