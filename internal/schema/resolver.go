package schema

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/AlexKimmel/GateQL/internal/auth"
	"github.com/AlexKimmel/GateQL/internal/books"
	"github.com/AlexKimmel/GateQL/internal/ratelimit"
)

// Resolver is the root of both the Query and the Mutation type.
type Resolver struct {
	repo  books.Repository
	guard *ratelimit.Guard
}

type idArgs struct {
	ID graphql.ID
}

type createInput struct {
	Title            string
	ClientMutationID *string
}

type updateInput struct {
	ID               graphql.ID
	Title            string
	ClientMutationID *string
}

func (r *Resolver) Book(ctx context.Context, args idArgs) (*bookResolver, error) {
	return ratelimit.Resolve(ctx, r.guard, clientOf(ctx), QueryBook, func(ctx context.Context) (*bookResolver, error) {
		return r.book(ctx, args.ID)
	})
}

func (r *Resolver) BookAsAdmin(ctx context.Context, args idArgs) (*bookResolver, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return ratelimit.Resolve(ctx, r.guard, clientOf(ctx), QueryBookAsAdmin, func(ctx context.Context) (*bookResolver, error) {
		return r.book(ctx, args.ID)
	})
}

func (r *Resolver) BookThrottled(ctx context.Context, args idArgs) (*bookResolver, error) {
	return ratelimit.Resolve(ctx, r.guard, clientOf(ctx), QueryBookThrottled, func(ctx context.Context) (*bookResolver, error) {
		return r.book(ctx, args.ID)
	})
}

func (r *Resolver) Books(ctx context.Context, args pageArgs) (*connectionResolver, error) {
	return ratelimit.Resolve(ctx, r.guard, clientOf(ctx), QueryBooks, func(ctx context.Context) (*connectionResolver, error) {
		return r.books(ctx, args, "")
	})
}

func (r *Resolver) BooksAsAdmin(ctx context.Context, args pageArgs) (*connectionResolver, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return ratelimit.Resolve(ctx, r.guard, clientOf(ctx), QueryBooksAsAdmin, func(ctx context.Context) (*connectionResolver, error) {
		return r.books(ctx, args, "")
	})
}

func (r *Resolver) BooksThrottled(ctx context.Context, args pageArgs) (*connectionResolver, error) {
	return ratelimit.Resolve(ctx, r.guard, clientOf(ctx), QueryBooksThrottled, func(ctx context.Context) (*connectionResolver, error) {
		return r.books(ctx, args, "")
	})
}

func (r *Resolver) BooksFiltered(ctx context.Context, args filterArgs) (*connectionResolver, error) {
	return ratelimit.Resolve(ctx, r.guard, clientOf(ctx), QueryBooksFiltered, func(ctx context.Context) (*connectionResolver, error) {
		return r.books(ctx, args.page(), args.search())
	})
}

func (r *Resolver) BooksFilteredAsAdmin(ctx context.Context, args filterArgs) (*connectionResolver, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return ratelimit.Resolve(ctx, r.guard, clientOf(ctx), QueryBooksFilteredAsAdmin, func(ctx context.Context) (*connectionResolver, error) {
		return r.books(ctx, args.page(), args.search())
	})
}

func (r *Resolver) BooksFilteredThrottled(ctx context.Context, args filterArgs) (*connectionResolver, error) {
	return ratelimit.Resolve(ctx, r.guard, clientOf(ctx), QueryBooksFilteredThrottled, func(ctx context.Context) (*connectionResolver, error) {
		return r.books(ctx, args.page(), args.search())
	})
}

func (r *Resolver) Node(ctx context.Context, args idArgs) (*nodeResolver, error) {
	return ratelimit.Resolve(ctx, r.guard, clientOf(ctx), QueryNode, func(ctx context.Context) (*nodeResolver, error) {
		return r.node(ctx, args.ID)
	})
}

func (r *Resolver) CreateRelayBook(ctx context.Context, args struct{ Input createInput }) (*payloadResolver, error) {
	return ratelimit.Resolve(ctx, r.guard, clientOf(ctx), MutationCreateRelayBook, func(ctx context.Context) (*payloadResolver, error) {
		return r.create(ctx, args.Input)
	})
}

func (r *Resolver) CreateRelayBookAdmin(ctx context.Context, args struct{ Input createInput }) (*payloadResolver, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return ratelimit.Resolve(ctx, r.guard, clientOf(ctx), MutationCreateRelayBookAdmin, func(ctx context.Context) (*payloadResolver, error) {
		return r.create(ctx, args.Input)
	})
}

func (r *Resolver) CreateRelayBookThrottle(ctx context.Context, args struct{ Input createInput }) (*payloadResolver, error) {
	return ratelimit.Resolve(ctx, r.guard, clientOf(ctx), MutationCreateRelayBookThrottle, func(ctx context.Context) (*payloadResolver, error) {
		return r.create(ctx, args.Input)
	})
}

func (r *Resolver) UpdateRelayBook(ctx context.Context, args struct{ Input updateInput }) (*payloadResolver, error) {
	return ratelimit.Resolve(ctx, r.guard, clientOf(ctx), MutationUpdateRelayBook, func(ctx context.Context) (*payloadResolver, error) {
		return r.update(ctx, args.Input)
	})
}

func requireAdmin(ctx context.Context) error {
	if !auth.HasRole(ctx, auth.RoleAdmin) {
		return &auth.PermissionError{}
	}
	return nil
}

func (r *Resolver) node(ctx context.Context, id graphql.ID) (*nodeResolver, error) {
	kind := relay.UnmarshalKind(id)
	pk, ok := decodeID(id, kind)
	if !ok {
		return nil, nil
	}
	var (
		n   node
		err error
	)
	switch kind {
	case kindBook:
		var b books.Book
		if b, err = r.repo.Book(ctx, pk); err == nil {
			n = &bookResolver{repo: r.repo, b: b}
		}
	case kindAuthor:
		var a books.Author
		if a, err = r.repo.Author(ctx, pk); err == nil {
			n = &authorResolver{a: a}
		}
	case kindPublisher:
		var p books.Publisher
		if p, err = r.repo.Publisher(ctx, pk); err == nil {
			n = &publisherResolver{repo: r.repo, p: p}
		}
	default:
		return nil, nil
	}
	if err != nil {
		if books.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &nodeResolver{n}, nil
}

func (r *Resolver) book(ctx context.Context, id graphql.ID) (*bookResolver, error) {
	pk, ok := decodeID(id, kindBook)
	if !ok {
		return nil, nil
	}
	b, err := r.repo.Book(ctx, pk)
	if err != nil {
		if books.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &bookResolver{repo: r.repo, b: b}, nil
}

func (r *Resolver) create(ctx context.Context, in createInput) (*payloadResolver, error) {
	if errs := books.ValidateTitle(in.Title); len(errs) > 0 {
		return invalid(errs, in.ClientMutationID), nil
	}
	b, err := r.repo.CreateBook(ctx, in.Title)
	if err != nil {
		return nil, err
	}
	return &payloadResolver{book: &bookResolver{repo: r.repo, b: b}, clientMutationID: in.ClientMutationID}, nil
}

func (r *Resolver) update(ctx context.Context, in updateInput) (*payloadResolver, error) {
	pk, ok := decodeID(in.ID, kindBook)
	if !ok {
		return nil, &books.NotFoundError{Kind: "Book"}
	}
	if _, err := r.repo.Book(ctx, pk); err != nil {
		return nil, err
	}
	if errs := books.ValidateTitle(in.Title); len(errs) > 0 {
		return invalid(errs, in.ClientMutationID), nil
	}
	b, err := r.repo.UpdateBook(ctx, pk, in.Title)
	if err != nil {
		return nil, err
	}
	return &payloadResolver{book: &bookResolver{repo: r.repo, b: b}, clientMutationID: in.ClientMutationID}, nil
}

const (
	kindBook      = "BookType"
	kindAuthor    = "AuthorType"
	kindPublisher = "PublisherType"
)

func encodeID(kind string, pk int) graphql.ID {
	return relay.MarshalID(kind, pk)
}

// decodeID accepts only ids of the given kind.
func decodeID(id graphql.ID, kind string) (int, bool) {
	if relay.UnmarshalKind(id) != kind {
		return 0, false
	}
	var pk int
	if err := relay.UnmarshalSpec(id, &pk); err != nil || pk <= 0 {
		return 0, false
	}
	return pk, true
}
