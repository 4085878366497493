// Package books is the persistence layer behind the graph API. It is only
// reached once a call has passed throttling.
package books

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

type Book struct {
	ID          int
	Title       string
	PublisherID int // 0 when unset
}

type Author struct {
	ID        int
	FirstName string
	LastName  string
	Email     string
}

type Publisher struct {
	ID      int
	Name    string
	Address string
}

var ErrNotFound = errors.New("not found")

// NotFoundError is returned when a lookup matches no record.
type NotFoundError struct {
	Kind string // "Book", "Author", "Publisher"
}

func (e *NotFoundError) Error() string { return "No " + e.Kind + " matches the given query." }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Repository is implemented by the memory and postgres stores.
type Repository interface {
	Book(ctx context.Context, id int) (Book, error)
	// Books returns one page ordered by id together with the total count of
	// books whose title matches search. A negative limit means no limit.
	Books(ctx context.Context, search string, offset, limit int) ([]Book, int, error)
	BooksByPublisher(ctx context.Context, publisherID int) ([]Book, error)
	CreateBook(ctx context.Context, title string) (Book, error)
	UpdateBook(ctx context.Context, id int, title string) (Book, error)
	Publisher(ctx context.Context, id int) (Publisher, error)
	Author(ctx context.Context, id int) (Author, error)
	Authors(ctx context.Context, bookID int) ([]Author, error)
}

// FieldError is a validation failure reported inside a mutation payload.
type FieldError struct {
	Field    string
	Messages []string
}

const TitleMaxLength = 255

// ValidateTitle checks a book title the way the create/update inputs do.
func ValidateTitle(title string) []FieldError {
	switch {
	case strings.TrimSpace(title) == "":
		return []FieldError{{Field: "title", Messages: []string{"This field may not be blank."}}}
	case utf8.RuneCountInString(title) > TitleMaxLength:
		return []FieldError{{Field: "title", Messages: []string{"Ensure this field has no more than 255 characters."}}}
	}
	return nil
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// MatchesSearch reports whether title contains search, ignoring case. An
// empty search matches everything.
func MatchesSearch(title, search string) bool {
	search = strings.TrimSpace(search)
	return search == "" || strings.Contains(strings.ToLower(title), strings.ToLower(search))
}
