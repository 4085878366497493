package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AlexKimmel/GateQL/internal/ratelimit"
)

const locateQuery = `query A {
  first: books { totalCount }
  ...More
}

query B {
  books {
    edges {
      ... on BookTypeEdge { node { title } }
    }
  }
}

fragment More on Query {
  bookThrottled(id: "x") { title }
}
`

func TestLocate(t *testing.T) {
	cases := []struct {
		name string
		op   string
		path []any
		want []ratelimit.Location
	}{
		{"alias", "A", []any{"first"}, []ratelimit.Location{{Line: 2, Column: 3}}},
		{"fragment spread", "A", []any{"bookThrottled"}, []ratelimit.Location{{Line: 15, Column: 3}}},
		{"nested through list and inline fragment", "B", []any{"books", "edges", 0, "node", "title"}, []ratelimit.Location{{Line: 9, Column: 36}}},
		{"unknown key", "A", []any{"books"}, nil},
		{"empty path", "A", nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, newLocator(locateQuery, tc.op).locate(tc.path))
		})
	}
}

func TestLocateUnparsable(t *testing.T) {
	assert.Nil(t, newLocator(`{ books `, ""))
	assert.Nil(t, newLocator(locateQuery, ""), "two operations need a name")
	var l *locator
	assert.Nil(t, l.locate([]any{"books"}))
}
