package books

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Repository, used by tests and the default config.
type Memory struct {
	mu         sync.RWMutex
	nextID     int
	books      map[int]Book
	publishers map[int]Publisher
	authors    map[int]Author
	bookAuthor map[int][]int
}

var _ Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		nextID:     1,
		books:      make(map[int]Book),
		publishers: make(map[int]Publisher),
		authors:    make(map[int]Author),
		bookAuthor: make(map[int][]int),
	}
}

// Seed loads fixtures. Book ids must not collide with later CreateBook calls;
// the id sequence continues after the highest seeded id.
func (m *Memory) Seed(books []Book, publishers []Publisher, authors []Author, links map[int][]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range books {
		m.books[b.ID] = b
		if b.ID >= m.nextID {
			m.nextID = b.ID + 1
		}
	}
	for _, p := range publishers {
		m.publishers[p.ID] = p
	}
	for _, a := range authors {
		m.authors[a.ID] = a
	}
	for bookID, ids := range links {
		m.bookAuthor[bookID] = append([]int(nil), ids...)
	}
}

func (m *Memory) Book(_ context.Context, id int) (Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	if !ok {
		return Book{}, &NotFoundError{Kind: "Book"}
	}
	return b, nil
}

func (m *Memory) Books(_ context.Context, search string, offset, limit int) ([]Book, int, error) {
	m.mu.RLock()
	all := make([]Book, 0, len(m.books))
	for _, b := range m.books {
		if MatchesSearch(b.Title, search) {
			all = append(all, b)
		}
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := total
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (m *Memory) BooksByPublisher(_ context.Context, publisherID int) ([]Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Book
	for _, b := range m.books {
		if b.PublisherID == publisherID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateBook(_ context.Context, title string) (Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := Book{ID: m.nextID, Title: title}
	m.nextID++
	m.books[b.ID] = b
	return b, nil
}

func (m *Memory) UpdateBook(_ context.Context, id int, title string) (Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return Book{}, &NotFoundError{Kind: "Book"}
	}
	b.Title = title
	m.books[id] = b
	return b, nil
}

func (m *Memory) Publisher(_ context.Context, id int) (Publisher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.publishers[id]
	if !ok {
		return Publisher{}, &NotFoundError{Kind: "Publisher"}
	}
	return p, nil
}

func (m *Memory) Authors(_ context.Context, bookID int) ([]Author, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Author, 0, len(m.bookAuthor[bookID]))
	for _, id := range m.bookAuthor[bookID] {
		if a, ok := m.authors[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) Author(_ context.Context, id int) (Author, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.authors[id]
	if !ok {
		return Author{}, &NotFoundError{Kind: "Author"}
	}
	return a, nil
}
