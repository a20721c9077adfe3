package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bookstack/server/internal/model"
)

// CategoryRepo defines the interface for category operations.
type CategoryRepo interface {
	Create(ctx context.Context, name string) (model.Category, error)
	List(ctx context.Context) ([]model.Category, error)
}

type categoryRepo struct {
	db *sql.DB
}

// NewCategoryRepo creates a new CategoryRepo instance
func NewCategoryRepo(db *sql.DB) CategoryRepo {
	return &categoryRepo{db: db}
}

func (r *categoryRepo) Create(ctx context.Context, name string) (model.Category, error) {
	category := model.Category{Name: name}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO categories (name) VALUES ($1) RETURNING id
	`, name).Scan(&category.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Category{}, ErrDuplicate
		}
		return model.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return category, nil
}

func (r *categoryRepo) List(ctx context.Context) ([]model.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []model.Category{}
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
