package ratelimit

import (
	"context"
	"strings"
)

// ClientID identifies the throttled subject, e.g. an API key id or an
// anonymous source address.
type ClientID string

// Key indexes one counter. Two distinct (scope, client, resolver) triples
// never share a counter.
type Key struct {
	Scope    string
	Client   ClientID
	Resolver string
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

// Escape makes a key component safe to join with '|'.
func Escape(s string) string { return keyEscaper.Replace(s) }

func (k Key) String() string {
	return Escape(k.Scope) + "|" + Escape(k.Resolver) + "|" + Escape(string(k.Client))
}

type ctxKey int

const keyClient ctxKey = 0

// WithClient stores the identity computed for the current request.
func WithClient(ctx context.Context, id ClientID) context.Context {
	return context.WithValue(ctx, keyClient, id)
}

// ClientFrom returns the identity stored by WithClient.
func ClientFrom(ctx context.Context) (ClientID, bool) {
	id, ok := ctx.Value(keyClient).(ClientID)
	return id, ok && id != ""
}
