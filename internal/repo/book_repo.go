package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/bookstack/server/internal/model"
)

// BookRepo defines the interface for catalog book operations.
type BookRepo interface {
	Create(ctx context.Context, book model.Book, tagIDs []int64) (model.Book, error)
	GetByID(ctx context.Context, id int64) (model.Book, error)
	List(ctx context.Context, filter model.BookFilter) ([]model.Book, error)
	Update(ctx context.Context, book model.Book, tagIDs []int64) (model.Book, error)
	Delete(ctx context.Context, id int64) error
}

type bookRepo struct {
	db *sql.DB
}

// NewBookRepo creates a new BookRepo instance
func NewBookRepo(db *sql.DB) BookRepo {
	return &bookRepo{db: db}
}

// Create inserts the book and its tag links in one transaction.
func (r *bookRepo) Create(ctx context.Context, book model.Book, tagIDs []int64) (model.Book, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Book{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO books (title, author, description, category_id)
		VALUES ($1, $2, $3, NULLIF($4, 0))
		RETURNING id, created_at, updated_at
	`, book.Title, book.Author, book.Description, book.CategoryID).
		Scan(&book.ID, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		return model.Book{}, fmt.Errorf("insert book: %w", err)
	}

	if err := replaceTags(ctx, tx, book.ID, tagIDs); err != nil {
		return model.Book{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Book{}, fmt.Errorf("commit: %w", err)
	}
	return r.GetByID(ctx, book.ID)
}

// GetByID retrieves a book with its tags.
func (r *bookRepo) GetByID(ctx context.Context, id int64) (model.Book, error) {
	var book model.Book
	var categoryID sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, author, description, category_id, created_at, updated_at
		FROM books WHERE id = $1
	`, id).Scan(&book.ID, &book.Title, &book.Author, &book.Description, &categoryID, &book.CreatedAt, &book.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Book{}, ErrNotFound
	}
	if err != nil {
		return model.Book{}, fmt.Errorf("query book: %w", err)
	}
	book.CategoryID = categoryID.Int64

	book.Tags, err = r.tagsFor(ctx, book.ID)
	if err != nil {
		return model.Book{}, err
	}
	return book, nil
}

// List returns books matching the filter, newest first. Limit defaults to 20
// and is capped at 100.
func (r *bookRepo) List(ctx context.Context, filter model.BookFilter) ([]model.Book, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CategoryID != 0 {
		conds = append(conds, "b.category_id = "+arg(filter.CategoryID))
	}
	if filter.TagID != 0 {
		conds = append(conds, "EXISTS (SELECT 1 FROM book_tags bt WHERE bt.book_id = b.id AND bt.tag_id = "+arg(filter.TagID)+")")
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conds = append(conds, "(b.title ILIKE "+p+" OR b.author ILIKE "+p+")")
	}

	query := `
		SELECT b.id, b.title, b.author, b.description, b.category_id, b.created_at, b.updated_at
		FROM books b`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY b.created_at DESC, b.id DESC LIMIT " + arg(filter.Limit) + " OFFSET " + arg(filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := []model.Book{}
	for rows.Next() {
		var book model.Book
		var categoryID sql.NullInt64
		if err := rows.Scan(&book.ID, &book.Title, &book.Author, &book.Description, &categoryID, &book.CreatedAt, &book.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		book.CategoryID = categoryID.Int64
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	for i := range books {
		books[i].Tags, err = r.tagsFor(ctx, books[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return books, nil
}

// Update rewrites the book and replaces its tag links.
func (r *bookRepo) Update(ctx context.Context, book model.Book, tagIDs []int64) (model.Book, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Book{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE books
		SET title = $2, author = $3, description = $4, category_id = NULLIF($5, 0), updated_at = now()
		WHERE id = $1
	`, book.ID, book.Title, book.Author, book.Description, book.CategoryID)
	if err != nil {
		return model.Book{}, fmt.Errorf("update book: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.Book{}, ErrNotFound
	}

	if err := replaceTags(ctx, tx, book.ID, tagIDs); err != nil {
		return model.Book{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Book{}, fmt.Errorf("commit: %w", err)
	}
	return r.GetByID(ctx, book.ID)
}

// Delete removes the book; tag links go with it via ON DELETE CASCADE.
func (r *bookRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *bookRepo) tagsFor(ctx context.Context, bookID int64) ([]model.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.name
		FROM tags t
		JOIN book_tags bt ON bt.tag_id = t.id
		WHERE bt.book_id = $1
		ORDER BY t.name
	`, bookID)
	if err != nil {
		return nil, fmt.Errorf("query book tags: %w", err)
	}
	defer rows.Close()

	tags := []model.Tag{}
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func replaceTags(ctx context.Context, tx *sql.Tx, bookID int64, tagIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM book_tags WHERE book_id = $1`, bookID); err != nil {
		return fmt.Errorf("clear book tags: %w", err)
	}
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO book_tags (book_id, tag_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, bookID, tagID); err != nil {
			return fmt.Errorf("link tag %d: %w", tagID, err)
		}
	}
	return nil
}
