// Package schema is the graph API served by the gateway. Every top-level
// query and mutation field runs behind the throttle guard under the
// identity "<Operation>.<field>". Fields suffixed AsAdmin/Admin require the
// admin role and check it before any throttle counter is touched.
package schema

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/AlexKimmel/GateQL/internal/books"
	"github.com/AlexKimmel/GateQL/internal/ratelimit"
)

const SDL = `
schema {
  query: Query
  mutation: Mutation
}

interface Node {
  id: ID!
}

type AuthorType implements Node {
  firstName: String!
  lastName: String!
  email: String!
  id: ID!
}

type BookType implements Node {
  title: String!
  id: ID!
  publisher: PublisherType
  allAuthors: [AuthorType!]
}

type BookTypeConnection {
  pageInfo: PageInfo!
  edges: [BookTypeEdge]!
  totalCount: Int!
}

type BookTypeEdge {
  node: BookType
  cursor: String!
}

input CreateRelayBookInput {
  title: String!
  clientMutationId: String
}

type CreateRelayBookPayload {
  book: BookType
  errors: [ErrorType]
  clientMutationId: String
}

input UpdateRelayBookInput {
  id: ID!
  title: String!
  clientMutationId: String
}

type UpdateRelayBookPayload {
  book: BookType
  errors: [ErrorType]
  clientMutationId: String
}

type ErrorType {
  field: String
  messages: [String!]!
  path: [String!]
}

type Mutation {
  createRelayBook(input: CreateRelayBookInput!): CreateRelayBookPayload
  createRelayBookAdmin(input: CreateRelayBookInput!): CreateRelayBookPayload
  createRelayBookThrottle(input: CreateRelayBookInput!): CreateRelayBookPayload
  updateRelayBook(input: UpdateRelayBookInput!): UpdateRelayBookPayload
}

type PageInfo {
  hasNextPage: Boolean!
  hasPreviousPage: Boolean!
  startCursor: String
  endCursor: String
}

type PublisherType implements Node {
  name: String!
  address: String!
  id: ID!
  allBooks: [BookType!]
}

type Query {
  node(id: ID!): Node
  book(id: ID!): BookType
  books(before: String, after: String, first: Int, last: Int): BookTypeConnection
  bookAsAdmin(id: ID!): BookType
  booksAsAdmin(before: String, after: String, first: Int, last: Int): BookTypeConnection
  bookThrottled(id: ID!): BookType
  booksThrottled(before: String, after: String, first: Int, last: Int): BookTypeConnection
  booksFiltered(before: String, after: String, first: Int, last: Int, search: String): BookTypeConnection
  booksFilteredAsAdmin(before: String, after: String, first: Int, last: Int, search: String): BookTypeConnection
  booksFilteredThrottled(before: String, after: String, first: Int, last: Int, search: String): BookTypeConnection
}
`

// Resolver identities, as used for policy attachment.
const (
	QueryNode                       = "Query.node"
	QueryBook                       = "Query.book"
	QueryBooks                      = "Query.books"
	QueryBookAsAdmin                = "Query.bookAsAdmin"
	QueryBooksAsAdmin               = "Query.booksAsAdmin"
	QueryBookThrottled              = "Query.bookThrottled"
	QueryBooksThrottled             = "Query.booksThrottled"
	QueryBooksFiltered              = "Query.booksFiltered"
	QueryBooksFilteredAsAdmin       = "Query.booksFilteredAsAdmin"
	QueryBooksFilteredThrottled     = "Query.booksFilteredThrottled"
	MutationCreateRelayBook         = "Mutation.createRelayBook"
	MutationCreateRelayBookAdmin    = "Mutation.createRelayBookAdmin"
	MutationCreateRelayBookThrottle = "Mutation.createRelayBookThrottle"
	MutationUpdateRelayBook         = "Mutation.updateRelayBook"
)

// Fields lists every guarded resolver identity in schema order.
func Fields() []string {
	return []string{
		QueryNode, QueryBook, QueryBooks, QueryBookAsAdmin, QueryBooksAsAdmin,
		QueryBookThrottled, QueryBooksThrottled,
		QueryBooksFiltered, QueryBooksFilteredAsAdmin, QueryBooksFilteredThrottled,
		MutationCreateRelayBook, MutationCreateRelayBookAdmin, MutationCreateRelayBookThrottle,
		MutationUpdateRelayBook,
	}
}

// Known reports whether resolver names a guarded field of this schema.
func Known(resolver string) bool {
	for _, f := range Fields() {
		if f == resolver {
			return true
		}
	}
	return false
}

// New parses the schema against a root resolver backed by repo.
func New(repo books.Repository, guard *ratelimit.Guard, opts ...graphql.SchemaOpt) (*graphql.Schema, error) {
	return graphql.ParseSchema(SDL, &Resolver{repo: repo, guard: guard}, opts...)
}

// anonymous is used when nothing upstream identified the caller.
const anonymous ratelimit.ClientID = "anonymous"

func clientOf(ctx context.Context) ratelimit.ClientID {
	if id, ok := ratelimit.ClientFrom(ctx); ok && id != "" {
		return id
	}
	return anonymous
}
