package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bookstack/server/internal/model"
)

// TagRepo defines the interface for tag operations.
type TagRepo interface {
	Create(ctx context.Context, name string) (model.Tag, error)
	List(ctx context.Context) ([]model.Tag, error)
}

type tagRepo struct {
	db *sql.DB
}

// NewTagRepo creates a new TagRepo instance
func NewTagRepo(db *sql.DB) TagRepo {
	return &tagRepo{db: db}
}

func (r *tagRepo) Create(ctx context.Context, name string) (model.Tag, error) {
	tag := model.Tag{Name: name}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO tags (name) VALUES ($1) RETURNING id
	`, name).Scan(&tag.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Tag{}, ErrDuplicate
		}
		return model.Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	return tag, nil
}

func (r *tagRepo) List(ctx context.Context) ([]model.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
