package schema

import (
	"context"
	"testing"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexKimmel/GateQL/internal/auth"
	"github.com/AlexKimmel/GateQL/internal/books"
	"github.com/AlexKimmel/GateQL/internal/ratelimit"
	"github.com/AlexKimmel/GateQL/internal/ratelimit/memory"
)

func newSchema(t *testing.T, attach map[string][]ratelimit.Policy) (*graphql.Schema, *books.Memory) {
	t.Helper()
	repo := books.NewMemory()
	repo.Seed(
		[]books.Book{{ID: 1, Title: "Dune", PublisherID: 1}, {ID: 2, Title: "Emma"}, {ID: 3, Title: "Ulysses", PublisherID: 1}},
		[]books.Publisher{{ID: 1, Name: "Chilton", Address: "Philadelphia"}},
		[]books.Author{{ID: 1, FirstName: "Frank", LastName: "Herbert", Email: "frank@example.com"}},
		map[int][]int{1: {1}},
	)
	reg := ratelimit.NewRegistry()
	for resolver, policies := range attach {
		require.NoError(t, reg.Attach(resolver, policies...))
	}
	guard := ratelimit.NewGuard(ratelimit.NewEngine(memory.New()), reg)
	s, err := New(repo, guard)
	require.NoError(t, err)
	return s, repo
}

func exec(s *graphql.Schema, client string, query string, vars map[string]any) *graphql.Response {
	ctx := ratelimit.WithClient(context.Background(), ratelimit.ClientID(client))
	return s.Exec(ctx, query, "", vars)
}

func execAdmin(s *graphql.Schema, client string, query string) *graphql.Response {
	ctx := ratelimit.WithClient(context.Background(), ratelimit.ClientID(client))
	ctx = auth.WithRoleSet(ctx, []string{auth.RoleAdmin})
	return s.Exec(ctx, query, "", nil)
}

func TestFieldsAreKnown(t *testing.T) {
	for _, f := range Fields() {
		assert.True(t, Known(f), f)
	}
	assert.False(t, Known("Query.nope"))
}

func TestBookQuery(t *testing.T) {
	s, _ := newSchema(t, nil)

	res := exec(s, "key:1", `query($id: ID!) {
  book(id: $id) { id title publisher { name allBooks { title } } allAuthors { firstName email } }
}`, map[string]any{"id": "Qm9va1R5cGU6MQ=="})
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"book":{
		"id":"Qm9va1R5cGU6MQ==","title":"Dune",
		"publisher":{"name":"Chilton","allBooks":[{"title":"Dune"},{"title":"Ulysses"}]},
		"allAuthors":[{"firstName":"Frank","email":"frank@example.com"}]}}`, string(res.Data))

	res = exec(s, "key:1", `{ book(id: "Qm9va1R5cGU6OTk=") { title } }`, nil)
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"book":null}`, string(res.Data))
}

func TestBooksConnection(t *testing.T) {
	s, _ := newSchema(t, nil)

	res := exec(s, "key:1", `{ books(first: 2) { totalCount edges { cursor node { title } } pageInfo { hasNextPage hasPreviousPage endCursor } } }`, nil)
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"books":{"totalCount":3,
		"edges":[{"cursor":"YXJyYXljb25uZWN0aW9uOjA=","node":{"title":"Dune"}},{"cursor":"YXJyYXljb25uZWN0aW9uOjE=","node":{"title":"Emma"}}],
		"pageInfo":{"hasNextPage":true,"hasPreviousPage":false,"endCursor":"YXJyYXljb25uZWN0aW9uOjE="}}}`, string(res.Data))

	res = exec(s, "key:1", `{ books(after: "YXJyYXljb25uZWN0aW9uOjE=") { edges { node { title } } pageInfo { hasNextPage hasPreviousPage } } }`, nil)
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"books":{"edges":[{"node":{"title":"Ulysses"}}],"pageInfo":{"hasNextPage":false,"hasPreviousPage":true}}}`, string(res.Data))

	res = exec(s, "key:1", `{ books(last: 1) { edges { node { title } } } }`, nil)
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"books":{"edges":[{"node":{"title":"Ulysses"}}]}}`, string(res.Data))

	res = exec(s, "key:1", `{ books(after: "bogus") { totalCount } }`, nil)
	require.Len(t, res.Errors, 1)
	assert.JSONEq(t, `{"books":null}`, string(res.Data))
}

func TestCreateRelayBook(t *testing.T) {
	s, repo := newSchema(t, nil)
	const m = `mutation($input: CreateRelayBookInput!) {
  createRelayBook(input: $input) { book { id title } errors { field messages path } clientMutationId }
}`

	res := exec(s, "key:1", m, map[string]any{"input": map[string]any{"title": "", "clientMutationId": "c1"}})
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"createRelayBook":{"book":null,
		"errors":[{"field":"title","messages":["This field may not be blank."],"path":["title"]}],
		"clientMutationId":"c1"}}`, string(res.Data))

	res = exec(s, "key:1", m, map[string]any{"input": map[string]any{"title": "Middlemarch"}})
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"createRelayBook":{"book":{"id":"Qm9va1R5cGU6NA==","title":"Middlemarch"},"errors":null,"clientMutationId":null}}`, string(res.Data))

	b, err := repo.Book(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "Middlemarch", b.Title)
}

func TestUpdateRelayBook(t *testing.T) {
	s, repo := newSchema(t, nil)
	const m = `mutation($input: UpdateRelayBookInput!) {
  updateRelayBook(input: $input) { book { title } errors { field messages } }
}`

	res := exec(s, "key:1", m, map[string]any{"input": map[string]any{"id": "Qm9va1R5cGU6OTk=", "title": "x"}})
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "No Book matches the given query.", res.Errors[0].Message)
	assert.Equal(t, []any{"updateRelayBook"}, res.Errors[0].Path)
	assert.JSONEq(t, `{"updateRelayBook":null}`, string(res.Data))

	res = exec(s, "key:1", m, map[string]any{"input": map[string]any{"id": "Qm9va1R5cGU6Mg==", "title": " "}})
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"updateRelayBook":{"book":null,"errors":[{"field":"title","messages":["This field may not be blank."]}]}}`, string(res.Data))

	res = exec(s, "key:1", m, map[string]any{"input": map[string]any{"id": "Qm9va1R5cGU6Mg==", "title": "Persuasion"}})
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"updateRelayBook":{"book":{"title":"Persuasion"},"errors":null}}`, string(res.Data))

	b, err := repo.Book(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Persuasion", b.Title)
}

func TestGuardedFields(t *testing.T) {
	day, err := ratelimit.NewPolicy("throttle", 1, 24*time.Hour)
	require.NoError(t, err)
	s, _ := newSchema(t, map[string][]ratelimit.Policy{
		QueryBookThrottled:              {day},
		MutationCreateRelayBookThrottle: {day},
	})

	const q = `{ bookThrottled(id: "Qm9va1R5cGU6MQ==") { title } }`
	res := exec(s, "key:1", q, nil)
	require.Empty(t, res.Errors)

	res = exec(s, "key:1", q, nil)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Request was throttled. Expected available in 86400 seconds.", res.Errors[0].Message)
	assert.Equal(t, []any{"bookThrottled"}, res.Errors[0].Path)
	assert.True(t, ratelimit.IsThrottled(res.Errors[0].ResolverError))
	assert.JSONEq(t, `{"bookThrottled":null}`, string(res.Data))

	// other clients and unguarded siblings are unaffected
	res = exec(s, "key:2", q, nil)
	assert.Empty(t, res.Errors)
	for range 3 {
		res = exec(s, "key:1", `{ book(id: "Qm9va1R5cGU6MQ==") { title } }`, nil)
		assert.Empty(t, res.Errors)
	}

	const m = `mutation { createRelayBookThrottle(input: {title: "A"}) { book { title } } }`
	res = exec(s, "key:1", m, nil)
	require.Empty(t, res.Errors)
	res = exec(s, "key:1", m, nil)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, []any{"createRelayBookThrottle"}, res.Errors[0].Path)
}

const permissionDenied = "You do not have permission to perform this action."

func TestAdminFields(t *testing.T) {
	day, err := ratelimit.NewPolicy("admin", 1, 24*time.Hour)
	require.NoError(t, err)
	s, _ := newSchema(t, map[string][]ratelimit.Policy{QueryBookAsAdmin: {day}})

	const q = `{ bookAsAdmin(id: "Qm9va1R5cGU6MQ==") { title } }`
	for range 2 {
		res := exec(s, "key:1", q, nil)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, permissionDenied, res.Errors[0].Message)
		assert.Equal(t, []any{"bookAsAdmin"}, res.Errors[0].Path)
	}

	// denied callers never consumed the budget
	res := execAdmin(s, "key:1", q)
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"bookAsAdmin":{"title":"Dune"}}`, string(res.Data))
	res = execAdmin(s, "key:1", q)
	require.Len(t, res.Errors, 1)
	assert.True(t, ratelimit.IsThrottled(res.Errors[0].ResolverError))

	for _, q := range []string{
		`{ booksAsAdmin { totalCount } }`,
		`{ booksFilteredAsAdmin(search: "u") { totalCount } }`,
		`mutation { createRelayBookAdmin(input: {title: "A"}) { book { title } } }`,
	} {
		res := exec(s, "key:1", q, nil)
		require.Len(t, res.Errors, 1, q)
		assert.Equal(t, permissionDenied, res.Errors[0].Message, q)
	}

	res = execAdmin(s, "key:1", `{ booksFilteredAsAdmin(search: "u") { totalCount } }`)
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"booksFilteredAsAdmin":{"totalCount":2}}`, string(res.Data))

	res = execAdmin(s, "key:1", `mutation { createRelayBookAdmin(input: {title: "Admin"}) { book { title } } }`)
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"createRelayBookAdmin":{"book":{"title":"Admin"}}}`, string(res.Data))
}

func TestBooksFiltered(t *testing.T) {
	s, _ := newSchema(t, nil)

	res := exec(s, "key:1", `{ booksFiltered(search: "U", first: 1) {
		totalCount edges { node { title } } pageInfo { hasNextPage } } }`, nil)
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"booksFiltered":{"totalCount":2,"edges":[{"node":{"title":"Dune"}}],"pageInfo":{"hasNextPage":true}}}`, string(res.Data))

	res = exec(s, "key:1", `{ booksFiltered { totalCount } }`, nil)
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"booksFiltered":{"totalCount":3}}`, string(res.Data))
}

func TestBooksFilteredThrottled(t *testing.T) {
	two, err := ratelimit.NewPolicy("search", 2, time.Hour)
	require.NoError(t, err)
	s, _ := newSchema(t, map[string][]ratelimit.Policy{QueryBooksFilteredThrottled: {two}})

	for _, search := range []string{"emma", "ulysses"} {
		res := exec(s, "key:1", `query($s: String) { booksFilteredThrottled(search: $s) { edges { node { title } } } }`,
			map[string]any{"s": search})
		require.Empty(t, res.Errors)
		assert.Contains(t, string(res.Data), `"title"`)
	}

	// different search terms share one budget
	res := exec(s, "key:1", `{ booksFilteredThrottled(search: "dune") { totalCount } }`, nil)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Request was throttled. Expected available in 3600 seconds.", res.Errors[0].Message)
	assert.JSONEq(t, `{"booksFilteredThrottled":null}`, string(res.Data))

	// the unthrottled filter is unaffected
	res = exec(s, "key:1", `{ booksFiltered(search: "dune") { totalCount } }`, nil)
	require.Empty(t, res.Errors)
	assert.JSONEq(t, `{"booksFiltered":{"totalCount":1}}`, string(res.Data))
}

func TestNode(t *testing.T) {
	s, _ := newSchema(t, nil)
	const q = `query($id: ID!) { node(id: $id) {
		id
		... on BookType { title }
		... on AuthorType { lastName }
		... on PublisherType { name }
	} }`

	cases := map[string]string{
		string(encodeID(kindBook, 1)):      `{"node":{"id":"Qm9va1R5cGU6MQ==","title":"Dune"}}`,
		string(encodeID(kindAuthor, 1)):    `{"node":{"id":"` + string(encodeID(kindAuthor, 1)) + `","lastName":"Herbert"}}`,
		string(encodeID(kindPublisher, 1)): `{"node":{"id":"` + string(encodeID(kindPublisher, 1)) + `","name":"Chilton"}}`,
		string(encodeID(kindBook, 99)):     `{"node":null}`,
		"not-an-id":                         `{"node":null}`,
	}
	for id, want := range cases {
		res := exec(s, "key:1", q, map[string]any{"id": id})
		require.Empty(t, res.Errors, id)
		assert.JSONEq(t, want, string(res.Data), id)
	}
}
