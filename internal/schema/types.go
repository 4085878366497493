package schema

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/AlexKimmel/GateQL/internal/books"
)

// node is implemented by every type behind the Node interface.
type node interface {
	ID() graphql.ID
}

type nodeResolver struct {
	node
}

func (r *nodeResolver) ToBookType() (*bookResolver, bool) {
	b, ok := r.node.(*bookResolver)
	return b, ok
}

func (r *nodeResolver) ToAuthorType() (*authorResolver, bool) {
	a, ok := r.node.(*authorResolver)
	return a, ok
}

func (r *nodeResolver) ToPublisherType() (*publisherResolver, bool) {
	p, ok := r.node.(*publisherResolver)
	return p, ok
}

type bookResolver struct {
	repo books.Repository
	b    books.Book
}

func (r *bookResolver) ID() graphql.ID { return encodeID(kindBook, r.b.ID) }
func (r *bookResolver) Title() string  { return r.b.Title }

func (r *bookResolver) Publisher(ctx context.Context) (*publisherResolver, error) {
	if r.b.PublisherID == 0 {
		return nil, nil
	}
	p, err := r.repo.Publisher(ctx, r.b.PublisherID)
	if err != nil {
		if books.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &publisherResolver{repo: r.repo, p: p}, nil
}

func (r *bookResolver) AllAuthors(ctx context.Context) (*[]*authorResolver, error) {
	authors, err := r.repo.Authors(ctx, r.b.ID)
	if err != nil {
		return nil, err
	}
	out := make([]*authorResolver, len(authors))
	for i, a := range authors {
		out[i] = &authorResolver{a: a}
	}
	return &out, nil
}

type authorResolver struct {
	a books.Author
}

func (r *authorResolver) ID() graphql.ID     { return encodeID(kindAuthor, r.a.ID) }
func (r *authorResolver) FirstName() string { return r.a.FirstName }
func (r *authorResolver) LastName() string  { return r.a.LastName }
func (r *authorResolver) Email() string     { return r.a.Email }

type publisherResolver struct {
	repo books.Repository
	p    books.Publisher
}

func (r *publisherResolver) ID() graphql.ID  { return encodeID(kindPublisher, r.p.ID) }
func (r *publisherResolver) Name() string    { return r.p.Name }
func (r *publisherResolver) Address() string { return r.p.Address }

func (r *publisherResolver) AllBooks(ctx context.Context) (*[]*bookResolver, error) {
	list, err := r.repo.BooksByPublisher(ctx, r.p.ID)
	if err != nil {
		return nil, err
	}
	out := make([]*bookResolver, len(list))
	for i, b := range list {
		out[i] = &bookResolver{repo: r.repo, b: b}
	}
	return &out, nil
}

// payloadResolver serves both CreateRelayBookPayload and UpdateRelayBookPayload.
type payloadResolver struct {
	book             *bookResolver
	errors           []*errorResolver
	clientMutationID *string
}

func invalid(errs []books.FieldError, clientMutationID *string) *payloadResolver {
	out := make([]*errorResolver, len(errs))
	for i, e := range errs {
		out[i] = &errorResolver{e: e}
	}
	return &payloadResolver{errors: out, clientMutationID: clientMutationID}
}

func (r *payloadResolver) Book() *bookResolver { return r.book }

func (r *payloadResolver) Errors() *[]*errorResolver {
	if r.errors == nil {
		return nil
	}
	return &r.errors
}

func (r *payloadResolver) ClientMutationID() *string { return r.clientMutationID }

type errorResolver struct {
	e books.FieldError
}

func (r *errorResolver) Field() *string {
	if r.e.Field == "" {
		return nil
	}
	f := r.e.Field
	return &f
}

func (r *errorResolver) Messages() []string { return r.e.Messages }

func (r *errorResolver) Path() *[]string {
	if r.e.Field == "" {
		return nil
	}
	return &[]string{r.e.Field}
}
