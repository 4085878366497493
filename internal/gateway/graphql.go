package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	graphql "github.com/graph-gophers/graphql-go"
	gqlerrors "github.com/graph-gophers/graphql-go/errors"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/hlog"

	"github.com/AlexKimmel/GateQL/internal/ratelimit"
)

var jsonc = jsoniter.ConfigCompatibleWithStandardLibrary

const storeFailureMessage = "Throttling is temporarily unavailable. Try again later."

type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type response struct {
	Data       json.RawMessage           `json:"data,omitempty"`
	Errors     []ratelimit.ErrorEnvelope `json:"errors,omitempty"`
	Extensions map[string]any            `json:"extensions,omitempty"`
}

// GraphQL serves a schema over HTTP. Executed operations always answer 200;
// field failures, throttling included, travel in the "errors" list.
type GraphQL struct {
	schema *graphql.Schema
}

func NewGraphQL(schema *graphql.Schema) *GraphQL {
	return &GraphQL{schema: schema}
}

func (h *GraphQL) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, status, msg := decodeRequest(r)
	if msg != "" {
		writeErrors(w, status, ratelimit.ErrorEnvelope{Message: msg})
		return
	}

	res := h.schema.Exec(r.Context(), req.Query, req.OperationName, req.Variables)

	out := response{Data: res.Data, Extensions: res.Extensions}
	var (
		loc    *locator
		parsed bool
	)
	for _, qe := range res.Errors {
		if len(qe.Locations) == 0 && len(qe.Path) > 0 && !parsed {
			loc, parsed = newLocator(req.Query, req.OperationName), true
		}
		out.Errors = append(out.Errors, envelope(r, qe, loc))
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeRequest returns a non-empty message when the request cannot be executed.
func decodeRequest(r *http.Request) (request, int, string) {
	var req request
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if v := q.Get("variables"); v != "" {
			if err := jsonc.UnmarshalFromString(v, &req.Variables); err != nil {
				return req, http.StatusBadRequest, "Variables are invalid JSON."
			}
		}
	case http.MethodPost:
		ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch ct {
		case "application/graphql":
			b, err := io.ReadAll(r.Body)
			if err != nil {
				return req, bodyStatus(err), "Could not read request body."
			}
			req.Query = string(b)
		case "application/json", "":
			if err := jsonc.NewDecoder(r.Body).Decode(&req); err != nil {
				return req, bodyStatus(err), "POST body sent invalid JSON."
			}
		default:
			return req, http.StatusUnsupportedMediaType, "Unsupported content type " + ct + "."
		}
	default:
		return req, http.StatusMethodNotAllowed, "GraphQL only supports GET and POST requests."
	}
	if strings.TrimSpace(req.Query) == "" {
		return req, http.StatusBadRequest, "Must provide query string."
	}
	return req, 0, ""
}

func bodyStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// envelope converts an executor error into its wire shape. Denials are
// rendered by the throttling layer; store failures are not leaked.
func envelope(r *http.Request, qe *gqlerrors.QueryError, loc *locator) ratelimit.ErrorEnvelope {
	var locs []ratelimit.Location
	for _, l := range qe.Locations {
		locs = append(locs, ratelimit.Location{Line: l.Line, Column: l.Column})
	}
	if len(locs) == 0 {
		locs = loc.locate(qe.Path)
	}

	var te *ratelimit.ThrottledError
	if errors.As(qe.ResolverError, &te) {
		return ratelimit.Format(te.Decision, qe.Path, locs)
	}
	if errors.Is(qe.ResolverError, ratelimit.ErrStoreUnavailable) {
		return ratelimit.ErrorEnvelope{Locations: locs, Message: storeFailureMessage, Path: qe.Path}
	}
	if qe.ResolverError != nil {
		hlog.FromRequest(r).Debug().Err(qe.ResolverError).Interface("path", qe.Path).Msg("resolver error")
	}
	return ratelimit.ErrorEnvelope{Locations: locs, Message: qe.Message, Path: qe.Path}
}

func writeErrors(w http.ResponseWriter, code int, errs ...ratelimit.ErrorEnvelope) {
	writeJSON(w, code, response{Errors: errs})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = jsonc.NewEncoder(w).Encode(v)
}
