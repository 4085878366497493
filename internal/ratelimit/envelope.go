package ratelimit

import "strconv"

// Location is a line/column position in the query document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// ErrorEnvelope mirrors one entry of the graph API "errors" list.
type ErrorEnvelope struct {
	Locations []Location `json:"locations,omitempty"`
	Message   string     `json:"message"`
	Path      []any      `json:"path,omitempty"`
}

// ThrottledMessage renders the user facing text of a denial.
func ThrottledMessage(d Decision) string {
	return "Request was throttled. Expected available in " + strconv.Itoa(d.Seconds()) + " seconds."
}

// Format builds the envelope for a denial. Path and locations belong to the
// transport and are passed through untouched.
func Format(d Decision, path []any, locations []Location) ErrorEnvelope {
	return ErrorEnvelope{
		Locations: locations,
		Message:   ThrottledMessage(d),
		Path:      path,
	}
}
