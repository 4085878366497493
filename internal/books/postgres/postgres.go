// Package postgres implements books.Repository on PostgreSQL using a pgx
// pool and goqu for query construction.
package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"

	"github.com/AlexKimmel/GateQL/internal/books"
)

const (
	dialectPostgres = "postgres"
	tblBooks        = "books"
	tblPublishers   = "publishers"
	tblAuthors      = "authors"
	tblBookAuthors  = "book_authors"
	colID           = "id"
	colTitle        = "title"
	colPublisherID  = "publisher_id"
	colName         = "name"
	colAddress      = "address"
	colFirstName    = "first_name"
	colLastName     = "last_name"
	colEmail        = "email"
	colBookID       = "book_id"
	colAuthorID     = "author_id"
)

// Schema creates the tables the repository reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS publishers (
	id      SERIAL PRIMARY KEY,
	name    TEXT NOT NULL,
	address TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS books (
	id           SERIAL PRIMARY KEY,
	title        VARCHAR(255) NOT NULL,
	publisher_id INTEGER REFERENCES publishers(id)
);
CREATE TABLE IF NOT EXISTS authors (
	id         SERIAL PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name  TEXT NOT NULL,
	email      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS book_authors (
	book_id   INTEGER NOT NULL REFERENCES books(id),
	author_id INTEGER NOT NULL REFERENCES authors(id),
	PRIMARY KEY (book_id, author_id)
);`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type Repository struct {
	pool *pgxpool.Pool
	db   goqu.DialectWrapper
}

var _ books.Repository = (*Repository)(nil)

// Connect opens a pool for dsn with the pool settings used in production.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parse postgres dsn")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute
	cfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pkgerrors.Wrap(err, "postgres ping failed")
	}
	return pool, nil
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: goqu.Dialect(dialectPostgres)}
}

// Migrate creates missing tables.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return pkgerrors.Wrap(err, "migrate")
}

func (r *Repository) Book(ctx context.Context, id int) (books.Book, error) {
	q, args, err := r.db.From(tblBooks).
		Select(colID, colTitle, colPublisherID).
		Where(goqu.C(colID).Eq(id)).
		Prepared(true).ToSQL()
	if err != nil {
		return books.Book{}, pkgerrors.Wrap(err, "build book query")
	}
	return scanBook(r.pool.QueryRow(ctx, q, args...))
}

func (r *Repository) Books(ctx context.Context, search string, offset, limit int) ([]books.Book, int, error) {
	from := r.db.From(tblBooks)
	if search = strings.TrimSpace(search); search != "" {
		from = from.Where(goqu.C(colTitle).ILike("%" + likeEscaper.Replace(search) + "%"))
	}

	ds := from.
		Select(colID, colTitle, colPublisherID).
		Order(goqu.I(colID).Asc()).
		Offset(uint(offset))
	if limit >= 0 {
		ds = ds.Limit(uint(limit))
	}
	// goqu treats Limit(0) as no limit
	list := []books.Book{}
	if limit != 0 {
		var err error
		if list, err = r.queryBooks(ctx, ds); err != nil {
			return nil, 0, err
		}
	}

	q, args, err := from.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, pkgerrors.Wrap(err, "build count query")
	}
	var total int
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&total); err != nil {
		return nil, 0, pkgerrors.Wrap(err, "count books")
	}
	return list, total, nil
}

func (r *Repository) BooksByPublisher(ctx context.Context, publisherID int) ([]books.Book, error) {
	return r.queryBooks(ctx, r.db.From(tblBooks).
		Select(colID, colTitle, colPublisherID).
		Where(goqu.C(colPublisherID).Eq(publisherID)).
		Order(goqu.I(colID).Asc()))
}

func (r *Repository) CreateBook(ctx context.Context, title string) (books.Book, error) {
	q, args, err := r.db.Insert(tblBooks).
		Rows(goqu.Record{colTitle: title}).
		Returning(colID, colTitle, colPublisherID).
		Prepared(true).ToSQL()
	if err != nil {
		return books.Book{}, pkgerrors.Wrap(err, "build insert")
	}
	return scanBook(r.pool.QueryRow(ctx, q, args...))
}

func (r *Repository) UpdateBook(ctx context.Context, id int, title string) (books.Book, error) {
	q, args, err := r.db.Update(tblBooks).
		Set(goqu.Record{colTitle: title}).
		Where(goqu.C(colID).Eq(id)).
		Returning(colID, colTitle, colPublisherID).
		Prepared(true).ToSQL()
	if err != nil {
		return books.Book{}, pkgerrors.Wrap(err, "build update")
	}
	return scanBook(r.pool.QueryRow(ctx, q, args...))
}

func (r *Repository) Publisher(ctx context.Context, id int) (books.Publisher, error) {
	q, args, err := r.db.From(tblPublishers).
		Select(colID, colName, colAddress).
		Where(goqu.C(colID).Eq(id)).
		Prepared(true).ToSQL()
	if err != nil {
		return books.Publisher{}, pkgerrors.Wrap(err, "build publisher query")
	}
	var p books.Publisher
	err = r.pool.QueryRow(ctx, q, args...).Scan(&p.ID, &p.Name, &p.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return books.Publisher{}, &books.NotFoundError{Kind: "Publisher"}
	}
	return p, pkgerrors.Wrap(err, "scan publisher")
}

func (r *Repository) Author(ctx context.Context, id int) (books.Author, error) {
	q, args, err := r.db.From(tblAuthors).
		Select(colID, colFirstName, colLastName, colEmail).
		Where(goqu.C(colID).Eq(id)).
		Prepared(true).ToSQL()
	if err != nil {
		return books.Author{}, pkgerrors.Wrap(err, "build author query")
	}
	var a books.Author
	err = r.pool.QueryRow(ctx, q, args...).Scan(&a.ID, &a.FirstName, &a.LastName, &a.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return books.Author{}, &books.NotFoundError{Kind: "Author"}
	}
	return a, pkgerrors.Wrap(err, "scan author")
}

func (r *Repository) Authors(ctx context.Context, bookID int) ([]books.Author, error) {
	q, args, err := r.db.From(goqu.T(tblAuthors).As("a")).
		Join(goqu.T(tblBookAuthors).As("ba"), goqu.On(goqu.I("ba."+colAuthorID).Eq(goqu.I("a."+colID)))).
		Select(goqu.I("a."+colID), goqu.I("a."+colFirstName), goqu.I("a."+colLastName), goqu.I("a."+colEmail)).
		Where(goqu.I("ba." + colBookID).Eq(bookID)).
		Order(goqu.I("a." + colID).Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "build authors query")
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query authors")
	}
	defer rows.Close()

	var out []books.Author
	for rows.Next() {
		var a books.Author
		if err := rows.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Email); err != nil {
			return nil, pkgerrors.Wrap(err, "scan author")
		}
		out = append(out, a)
	}
	return out, pkgerrors.Wrap(rows.Err(), "iterate authors")
}

func (r *Repository) queryBooks(ctx context.Context, ds *goqu.SelectDataset) ([]books.Book, error) {
	q, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "build books query")
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query books")
	}
	defer rows.Close()

	var out []books.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, pkgerrors.Wrap(rows.Err(), "iterate books")
}

func scanBook(row pgx.Row) (books.Book, error) {
	var (
		b   books.Book
		pub *int
	)
	err := row.Scan(&b.ID, &b.Title, &pub)
	if errors.Is(err, pgx.ErrNoRows) {
		return books.Book{}, &books.NotFoundError{Kind: "Book"}
	}
	if err != nil {
		return books.Book{}, pkgerrors.Wrap(err, "scan book")
	}
	if pub != nil {
		b.PublisherID = *pub
	}
	return b, nil
}
