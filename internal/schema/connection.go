package schema

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type pageArgs struct {
	Before *string
	After  *string
	First  *int32
	Last   *int32
}

type filterArgs struct {
	Before *string
	After  *string
	First  *int32
	Last   *int32
	Search *string
}

func (a filterArgs) page() pageArgs {
	return pageArgs{Before: a.Before, After: a.After, First: a.First, Last: a.Last}
}

func (a filterArgs) search() string {
	if a.Search == nil {
		return ""
	}
	return *a.Search
}

const cursorPrefix = "arrayconnection:"

func offsetCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

func cursorOffset(cursor string) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, errors.Errorf("invalid cursor %q", cursor)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(string(raw), cursorPrefix))
	if err != nil || !strings.HasPrefix(string(raw), cursorPrefix) || n < 0 {
		return 0, errors.Errorf("invalid cursor %q", cursor)
	}
	return n, nil
}

// window turns relay arguments into the [start, end) slice of total rows.
func (a pageArgs) window(total int) (start, end int, err error) {
	start, end = 0, total
	if a.After != nil {
		n, err := cursorOffset(*a.After)
		if err != nil {
			return 0, 0, err
		}
		start = min(n+1, total)
	}
	if a.Before != nil {
		n, err := cursorOffset(*a.Before)
		if err != nil {
			return 0, 0, err
		}
		end = max(min(n, end), start)
	}
	if a.First != nil {
		if *a.First < 0 {
			return 0, 0, errors.New("argument \"first\" must be a non-negative integer")
		}
		end = min(end, start+int(*a.First))
	}
	if a.Last != nil {
		if *a.Last < 0 {
			return 0, 0, errors.New("argument \"last\" must be a non-negative integer")
		}
		start = max(start, end-int(*a.Last))
	}
	return start, end, nil
}

func (r *Resolver) books(ctx context.Context, args pageArgs, search string) (*connectionResolver, error) {
	_, total, err := r.repo.Books(ctx, search, 0, 0)
	if err != nil {
		return nil, err
	}
	start, end, err := args.window(total)
	if err != nil {
		return nil, err
	}
	page, total, err := r.repo.Books(ctx, search, start, end-start)
	if err != nil {
		return nil, err
	}
	edges := make([]*edgeResolver, len(page))
	for i, b := range page {
		edges[i] = &edgeResolver{node: &bookResolver{repo: r.repo, b: b}, cursor: offsetCursor(start + i)}
	}
	return &connectionResolver{
		edges: edges,
		total: total,
		info: &pageInfoResolver{
			hasNext: end < total,
			hasPrev: start > 0,
			edges:   edges,
		},
	}, nil
}

type connectionResolver struct {
	edges []*edgeResolver
	total int
	info  *pageInfoResolver
}

func (r *connectionResolver) PageInfo() *pageInfoResolver { return r.info }
func (r *connectionResolver) Edges() []*edgeResolver     { return r.edges }
func (r *connectionResolver) TotalCount() int32          { return int32(r.total) }

type edgeResolver struct {
	node   *bookResolver
	cursor string
}

func (r *edgeResolver) Node() *bookResolver { return r.node }
func (r *edgeResolver) Cursor() string      { return r.cursor }

type pageInfoResolver struct {
	hasNext bool
	hasPrev bool
	edges   []*edgeResolver
}

func (r *pageInfoResolver) HasNextPage() bool     { return r.hasNext }
func (r *pageInfoResolver) HasPreviousPage() bool { return r.hasPrev }

func (r *pageInfoResolver) StartCursor() *string {
	if len(r.edges) == 0 {
		return nil
	}
	return &r.edges[0].cursor
}

func (r *pageInfoResolver) EndCursor() *string {
	if len(r.edges) == 0 {
		return nil
	}
	return &r.edges[len(r.edges)-1].cursor
}
