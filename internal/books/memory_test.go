package books

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_CRUD(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Book(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "No Book matches the given query.")

	m.Seed([]Book{{ID: 4, Title: "Dune", PublisherID: 1}}, []Publisher{{ID: 1, Name: "Chilton", Address: "Philadelphia"}},
		[]Author{{ID: 9, FirstName: "Frank", LastName: "Herbert", Email: "frank@example.com"}}, map[int][]int{4: {9}})

	b, err := m.CreateBook(ctx, "Emma")
	require.NoError(t, err)
	assert.Equal(t, 5, b.ID)

	b, err = m.UpdateBook(ctx, 5, "Persuasion")
	require.NoError(t, err)
	assert.Equal(t, "Persuasion", b.Title)

	_, err = m.UpdateBook(ctx, 99, "x")
	assert.ErrorIs(t, err, ErrNotFound)

	page, total, err := m.Books(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, 5, page[0].ID)

	page, _, err = m.Books(ctx, "", 10, 10)
	require.NoError(t, err)
	assert.Empty(t, page)

	authors, err := m.Authors(ctx, 4)
	require.NoError(t, err)
	require.Len(t, authors, 1)
	assert.Equal(t, "Herbert", authors[0].LastName)

	byPub, err := m.BooksByPublisher(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, byPub, 1)

	_, err = m.Publisher(ctx, 2)
	assert.EqualError(t, err, "No Publisher matches the given query.")

	a, err := m.Author(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "Frank", a.FirstName)
	_, err = m.Author(ctx, 1)
	assert.EqualError(t, err, "No Author matches the given query.")
}

func TestMemory_Search(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Seed([]Book{{ID: 1, Title: "Dune"}, {ID: 2, Title: "Dune Messiah"}, {ID: 3, Title: "Emma"}}, nil, nil, nil)

	page, total, err := m.Books(ctx, "  dUNE ", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []Book{{ID: 1, Title: "Dune"}, {ID: 2, Title: "Dune Messiah"}}, page)

	page, total, err = m.Books(ctx, "dune", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []Book{{ID: 2, Title: "Dune Messiah"}}, page)

	page, total, err = m.Books(ctx, "zzz", 0, -1)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, page)
}

func TestValidateTitle(t *testing.T) {
	assert.Equal(t, []FieldError{{Field: "title", Messages: []string{"This field may not be blank."}}}, ValidateTitle(""))
	assert.NotEmpty(t, ValidateTitle("   "))
	assert.NotEmpty(t, ValidateTitle(strings.Repeat("a", TitleMaxLength+1)))
	assert.Nil(t, ValidateTitle("Middlemarch"))
}
