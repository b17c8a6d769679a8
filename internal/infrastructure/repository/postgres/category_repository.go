package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

type CategoryRepository struct {
	db *sql.DB
}

func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) EnsureCategory(ctx context.Context, name, description string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, domain.WrapError(domain.ErrInvalidInput, "ensure category", errors.New("name is required"))
	}
	return upsertCategory(ctx, r.db, name, description)
}

func (r *CategoryRepository) GetCategoryByName(ctx context.Context, name string) (domain.Category, error) {
	var cat domain.Category
	err := r.db.QueryRowContext(ctx, `
SELECT id, name, description FROM categories WHERE name = $1
`, name).Scan(&cat.ID, &cat.Name, &cat.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, domain.WrapError(domain.ErrCategoryNotFound, "get category", fmt.Errorf("name=%s", name))
		}
		return domain.Category{}, fmt.Errorf("get category: %w", err)
	}
	return cat, nil
}

func (r *CategoryRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Category, 0)
	for rows.Next() {
		var cat domain.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Description); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

// DeleteCategory removes the category; documents referencing it fall back to no category.
func (r *CategoryRepository) DeleteCategory(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrCategoryNotFound, "delete category", fmt.Errorf("id=%s", id))
	}
	return nil
}

func upsertCategory(ctx context.Context, q queryer, name, description string) (domain.Category, error) {
	var cat domain.Category
	err := q.QueryRowContext(ctx, `
INSERT INTO categories (id, name, description)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE
SET description = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description ELSE categories.description END
RETURNING id, name, description
`, uuid.NewString(), name, description).Scan(&cat.ID, &cat.Name, &cat.Description)
	if err != nil {
		return domain.Category{}, fmt.Errorf("upsert category: %w", err)
	}
	return cat, nil
}
